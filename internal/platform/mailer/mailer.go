// Package mailer renders marketplace email templates and hands them to an
// EmailSender.
package mailer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Mailer sends templated email.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
}

func New(sender EmailSender, templates *TemplateEngine, logger zerolog.Logger) *Mailer {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Mailer{sender: sender, templates: templates, logger: logger}
}

// SendTemplate renders templateID with data and emails it to recipient.
func (m *Mailer) SendTemplate(ctx context.Context, templateID, recipient string, data map[string]string) error {
	if recipient == "" {
		return fmt.Errorf("mailer: recipient is required")
	}
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	if err := m.sender.SendEmail(ctx, recipient, subject, body); err != nil {
		m.logger.Error().Err(err).Str("template", templateID).Msg("failed to send email")
		return err
	}
	return nil
}

// HasTemplate reports whether templateID is registered.
func (m *Mailer) HasTemplate(templateID string) bool {
	return m.templates.Has(templateID)
}
