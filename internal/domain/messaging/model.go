package messaging

import (
	"time"

	"github.com/google/uuid"
)

// MaxBodyLength caps a single message.
const MaxBodyLength = 5000

// Conversation is a thread between accounts, optionally about a visit.
type Conversation struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ParticipantIDs []uuid.UUID `db:"participant_ids" json:"participant_ids"`
	VisitID        *uuid.UUID  `db:"visit_id" json:"visit_id,omitempty"`
	Subject        string      `db:"subject" json:"subject"`
	LastMessageAt  *time.Time  `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether id takes part in the conversation.
func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	for _, p := range c.ParticipantIDs {
		if p == id {
			return true
		}
	}
	return false
}

type Message struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ConversationID uuid.UUID   `db:"conversation_id" json:"conversation_id"`
	SenderID       uuid.UUID   `db:"sender_id" json:"sender_id"`
	Body           string      `db:"body" json:"body"`
	ReadBy         []uuid.UUID `db:"read_by" json:"read_by"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

type StartRequest struct {
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	VisitID        *uuid.UUID  `json:"visit_id"`
	Subject        string      `json:"subject"`
	Body           string      `json:"body"`
}

type SendRequest struct {
	Body string `json:"body"`
}
