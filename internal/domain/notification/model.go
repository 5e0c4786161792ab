package notification

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeVisitPosted         = "visit_posted"
	TypeApplicationReceived = "application_received"
	TypeApplicationAccepted = "application_accepted"
	TypeApplicationRejected = "application_rejected"
	TypeVisitConfirmed      = "visit_confirmed"
	TypeVisitCompleted      = "visit_completed"
	TypeCredentialVerified  = "credential_verified"
	TypeCredentialRejected  = "credential_rejected"
	TypePaymentSent         = "payment_sent"
	TypeMessageReceived     = "message_received"
	TypeSystem              = "system"
)

var validTypes = map[string]bool{
	TypeVisitPosted: true, TypeApplicationReceived: true, TypeApplicationAccepted: true,
	TypeApplicationRejected: true, TypeVisitConfirmed: true, TypeVisitCompleted: true,
	TypeCredentialVerified: true, TypeCredentialRejected: true, TypePaymentSent: true,
	TypeMessageReceived: true, TypeSystem: true,
}

// Notification is an in-app message for one account.
type Notification struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	Link      *string   `db:"link" json:"link,omitempty"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Input describes a notification to deliver. Data fills the email
// template of the same type.
type Input struct {
	UserID uuid.UUID         `json:"user_id"`
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Link   string            `json:"link,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

type UnreadCount struct {
	Unread int `json:"unread"`
}
