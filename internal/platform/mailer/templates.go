package mailer

import (
	"fmt"
	"strings"
	"sync"
)

// Template is a reusable email with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine holds templates keyed by ID and renders them.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine with the marketplace templates
// registered. Template IDs match notification types.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range builtIn {
		e.templates[t.ID] = t
	}
	return e
}

var builtIn = []Template{
	{
		ID:      "visit_posted",
		Subject: "New infusion visit near {{city}}",
		Body:    "A new {{infusion_type}} visit was posted for {{date}} paying {{pay}}. Open NurseBridge to apply.",
	},
	{
		ID:      "application_received",
		Subject: "New applicant for your {{date}} visit",
		Body:    "{{nurse_name}} applied to your {{infusion_type}} visit on {{date}}. Review the application in NurseBridge.",
	},
	{
		ID:      "application_accepted",
		Subject: "You're booked: {{infusion_type}} on {{date}}",
		Body:    "{{pharmacy}} accepted your application for the visit on {{date}} at {{time}}. Please confirm the assignment.",
	},
	{
		ID:      "application_rejected",
		Subject: "Update on your application",
		Body:    "The visit on {{date}} was filled by another nurse. Keep an eye on the job board for new visits.",
	},
	{
		ID:      "visit_confirmed",
		Subject: "Visit confirmed for {{date}}",
		Body:    "{{nurse_name}} confirmed the {{infusion_type}} visit on {{date}} at {{time}}.",
	},
	{
		ID:      "visit_completed",
		Subject: "Visit completed",
		Body:    "The {{infusion_type}} visit on {{date}} was marked completed. Documentation is available in NurseBridge.",
	},
	{
		ID:      "credential_verified",
		Subject: "Your {{credential}} was verified",
		Body:    "Your {{credential}} has been verified. You're one step closer to taking visits.",
	},
	{
		ID:      "credential_rejected",
		Subject: "Action needed: {{credential}}",
		Body:    "We couldn't verify your {{credential}}. Reviewer notes: {{notes}}. Please upload a new document.",
	},
	{
		ID:      "payment_sent",
		Subject: "Payment sent: {{amount}}",
		Body:    "A payment of {{amount}} for your visit on {{date}} is on its way.",
	},
	{
		ID:      "message_received",
		Subject: "New message from {{sender}}",
		Body:    "{{sender}} sent you a message: {{preview}}",
	},
	{
		ID:      "system",
		Subject: "{{title}}",
		Body:    "{{body}}",
	},
}

// Register adds or replaces a template.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Has reports whether a template with id exists.
func (e *TemplateEngine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[id]
	return ok
}

// Render replaces {{key}} placeholders with data. Placeholders without a
// value are left as-is.
func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}
