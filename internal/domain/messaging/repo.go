package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error)
	// MarkRead adds userID to read_by on every message of the conversation
	// the user has not read yet and returns how many changed.
	MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error)
}
