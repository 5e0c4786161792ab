package audit

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

var validActions = map[string]bool{
	ActionCreate: true, ActionRead: true, ActionUpdate: true, ActionDelete: true,
}

// AuditLog is one recorded API access.
type AuditLog struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	UserID     *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Action     string     `db:"action" json:"action"`
	EntityType string     `db:"entity_type" json:"entity_type"`
	EntityID   string     `db:"entity_id" json:"entity_id,omitempty"`
	Path       string     `db:"path" json:"path"`
	Method     string     `db:"method" json:"method"`
	Status     int        `db:"status" json:"status"`
	IPAddress  string     `db:"ip_address" json:"ip_address"`
	UserAgent  string     `db:"user_agent" json:"user_agent"`
	RequestID  string     `db:"request_id" json:"request_id"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Failed reports whether the audited request was rejected.
func (l *AuditLog) Failed() bool { return l.Status >= 400 }

type Filter struct {
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	From       *time.Time
	To         *time.Time
}

// Summary aggregates the entries matching a filter.
type Summary struct {
	Total        int            `json:"total"`
	Failed       int            `json:"failed"`
	ByAction     map[string]int `json:"by_action"`
	ByEntityType map[string]int `json:"by_entity_type"`
	ByUser       map[string]int `json:"by_user"`
	First        *time.Time     `json:"first,omitempty"`
	Last         *time.Time     `json:"last,omitempty"`
}
