package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/db"
)

// -- Conversation --

type conversationRepoPG struct{ pool *pgxpool.Pool }

func NewConversationRepoPG(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepoPG{pool: pool}
}

func (r *conversationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const convCols = `id, participant_ids, visit_id, subject, last_message_at, created_at`

func (r *conversationRepoPG) scanRow(row pgx.Row) (*Conversation, error) {
	var c Conversation
	if err := row.Scan(&c.ID, &c.ParticipantIDs, &c.VisitID, &c.Subject, &c.LastMessageAt, &c.CreatedAt); err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &c, nil
}

func (r *conversationRepoPG) Create(ctx context.Context, c *Conversation) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO conversation (`+convCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ParticipantIDs, c.VisitID, c.Subject, c.LastMessageAt, c.CreatedAt)
	return apperr.FromRepo(err)
}

func (r *conversationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+convCols+` FROM conversation WHERE id = $1`, id))
}

func (r *conversationRepoPG) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation WHERE $1 = ANY(participant_ids)`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+convCols+` FROM conversation WHERE $1 = ANY(participant_ids)
		ORDER BY COALESCE(last_message_at, created_at) DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Conversation
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *conversationRepoPG) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE conversation SET last_message_at = $2 WHERE id = $1`, id, at)
	return apperr.FromRepo(err)
}

// -- Message --

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const msgCols = `id, conversation_id, sender_id, body, read_by, created_at`

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO message (`+msgCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ConversationID, m.SenderID, m.Body, m.ReadBy, m.CreatedAt)
	return apperr.FromRepo(err)
}

func (r *messageRepoPG) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM message WHERE conversation_id = $1`, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+msgCols+` FROM message WHERE conversation_id = $1
		ORDER BY created_at LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.ReadBy, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, rows.Err()
}

func (r *messageRepoPG) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE message SET read_by = array_append(read_by, $2)
		WHERE conversation_id = $1 AND NOT ($2 = ANY(read_by))`, conversationID, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
