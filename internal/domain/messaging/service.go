package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/domain/notification"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/websocket"
)

const previewLength = 80

// Notifier delivers in-app notifications; *notification.Service implements it.
type Notifier interface {
	NotifyQuietly(ctx context.Context, in notification.Input)
}

// SenderDirectory resolves how a sender is named in notifications;
// *account.Service implements it.
type SenderDirectory interface {
	Email(ctx context.Context, accountID uuid.UUID) (string, error)
}

type nopNotifier struct{}

func (nopNotifier) NotifyQuietly(context.Context, notification.Input) {}

type Service struct {
	convs     ConversationRepository
	msgs      MessageRepository
	publisher websocket.EventPublisher
	notifier  Notifier
	senders   SenderDirectory
	logger    zerolog.Logger
}

// NewService creates the messaging service. publisher, notifier and senders
// may be nil.
func NewService(convs ConversationRepository, msgs MessageRepository, publisher websocket.EventPublisher, notifier Notifier, senders SenderDirectory, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = websocket.NopPublisher{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		convs:     convs,
		msgs:      msgs,
		publisher: publisher,
		notifier:  notifier,
		senders:   senders,
		logger:    logger.With().Str("service", "messaging").Logger(),
	}
}

// Start opens a conversation between the caller and the given participants.
// A non-empty Body is sent as the first message.
func (s *Service) Start(ctx context.Context, caller auth.Identity, in StartRequest) (*Conversation, *Message, error) {
	if caller.UserID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: authentication required", apperr.ErrUnauthorized)
	}
	participants := []uuid.UUID{caller.UserID}
	seen := map[uuid.UUID]bool{caller.UserID: true}
	for _, p := range in.ParticipantIDs {
		if p == uuid.Nil || seen[p] {
			continue
		}
		seen[p] = true
		participants = append(participants, p)
	}
	if len(participants) < 2 {
		return nil, nil, fmt.Errorf("%w: at least one other participant is required", apperr.ErrValidation)
	}
	first := strings.TrimSpace(in.Body)
	if first != "" {
		if err := validateBody(first); err != nil {
			return nil, nil, err
		}
	}

	c := &Conversation{
		ParticipantIDs: participants,
		VisitID:        in.VisitID,
		Subject:        strings.TrimSpace(in.Subject),
	}
	if err := s.convs.Create(ctx, c); err != nil {
		return nil, nil, apperr.Logged(s.logger, "conversation.create", err)
	}
	s.logger.Info().Str("conversation_id", c.ID.String()).Int("participants", len(participants)).Msg("conversation started")

	if first == "" {
		return c, nil, nil
	}
	m, err := s.send(ctx, caller, c, first)
	if err != nil {
		return nil, nil, err
	}
	return c, m, nil
}

func (s *Service) ListMine(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Conversation, int, error) {
	items, total, err := s.convs.ListByParticipant(ctx, caller.UserID, limit, offset)
	return items, total, apperr.Logged(s.logger, "conversation.list", err)
}

// Get returns a conversation the caller takes part in. Admins may read any.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Conversation, error) {
	c, err := s.convs.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: conversation not found", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Logged(s.logger, "conversation.get", err)
	}
	if !c.HasParticipant(caller.UserID) && !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: conversation not found", apperr.ErrNotFound)
	}
	return c, nil
}

// Send posts a message. Only participants may send, admins included.
func (s *Service) Send(ctx context.Context, caller auth.Identity, conversationID uuid.UUID, body string) (*Message, error) {
	c, err := s.Get(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(caller.UserID) {
		return nil, fmt.Errorf("%w: only participants can send messages", apperr.ErrForbidden)
	}
	return s.send(ctx, caller, c, body)
}

// validateBody checks a trimmed message body.
func validateBody(body string) error {
	if body == "" {
		return fmt.Errorf("%w: message body is required", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return fmt.Errorf("%w: message exceeds %d characters", apperr.ErrValidation, MaxBodyLength)
	}
	return nil
}

func (s *Service) send(ctx context.Context, caller auth.Identity, c *Conversation, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if err := validateBody(body); err != nil {
		return nil, err
	}

	m := &Message{
		ConversationID: c.ID,
		SenderID:       caller.UserID,
		Body:           body,
		ReadBy:         []uuid.UUID{caller.UserID},
	}
	if err := s.msgs.Create(ctx, m); err != nil {
		return nil, apperr.Logged(s.logger, "message.create", err)
	}
	if err := s.convs.Touch(ctx, c.ID, m.CreatedAt); err != nil {
		return nil, apperr.Logged(s.logger, "conversation.touch", err)
	}
	at := m.CreatedAt
	c.LastMessageAt = &at

	topic := websocket.ConversationTopic(c.ID)
	if ev, err := websocket.NewEvent(topic, "message.created", "message", m.ID.String(), m); err == nil {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("failed to push message")
		}
	}

	preview := preview(body)
	sender := s.senderName(ctx, caller.UserID)
	for _, p := range c.ParticipantIDs {
		if p == caller.UserID {
			continue
		}
		s.notifier.NotifyQuietly(ctx, notification.Input{
			UserID: p,
			Type:   notification.TypeMessageReceived,
			Title:  "New message",
			Body:   preview,
			Link:   "/messages/" + c.ID.String(),
			Data:   map[string]string{"sender": sender, "preview": preview},
		})
	}
	return m, nil
}

func (s *Service) ListMessages(ctx context.Context, caller auth.Identity, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	if _, err := s.Get(ctx, caller, conversationID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.msgs.ListByConversation(ctx, conversationID, limit, offset)
	return items, total, apperr.Logged(s.logger, "message.list", err)
}

// MarkRead marks every message of the conversation read by the caller.
func (s *Service) MarkRead(ctx context.Context, caller auth.Identity, conversationID uuid.UUID) (int64, error) {
	c, err := s.Get(ctx, caller, conversationID)
	if err != nil {
		return 0, err
	}
	if !c.HasParticipant(caller.UserID) {
		return 0, fmt.Errorf("%w: only participants can mark messages read", apperr.ErrForbidden)
	}
	n, err := s.msgs.MarkRead(ctx, conversationID, caller.UserID)
	return n, apperr.Logged(s.logger, "message.mark_read", err)
}

// TopicAuthorizer lets a user follow their own user topic and the topics of
// conversations they take part in.
func TopicAuthorizer(convs ConversationRepository) websocket.TopicAuthorizer {
	return func(ctx context.Context, userID uuid.UUID, topic string) bool {
		if websocket.OwnUserTopic(ctx, userID, topic) {
			return true
		}
		raw, ok := strings.CutPrefix(topic, "conversation/")
		if !ok {
			return false
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return false
		}
		c, err := convs.GetByID(ctx, id)
		if err != nil {
			return false
		}
		return c.HasParticipant(userID)
	}
}

func (s *Service) senderName(ctx context.Context, id uuid.UUID) string {
	if s.senders == nil {
		return "A NurseBridge user"
	}
	email, err := s.senders.Email(ctx, id)
	if err != nil || email == "" {
		return "A NurseBridge user"
	}
	return email
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	r := []rune(body)
	return string(r[:previewLength]) + "..."
}
