package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/websocket"
)

// Mailer sends templated email; *mailer.Mailer implements it.
type Mailer interface {
	SendTemplate(ctx context.Context, templateID, recipient string, data map[string]string) error
	HasTemplate(templateID string) bool
}

// EmailDirectory resolves an account's email address.
type EmailDirectory interface {
	Email(ctx context.Context, accountID uuid.UUID) (string, error)
}

type Service struct {
	repo      NotificationRepository
	publisher websocket.EventPublisher
	mailer    Mailer
	emails    EmailDirectory
	logger    zerolog.Logger
}

// NewService creates the notification service. mailer and emails may be
// nil, in which case no email is sent.
func NewService(repo NotificationRepository, publisher websocket.EventPublisher, mailer Mailer, emails EmailDirectory, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = websocket.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		mailer:    mailer,
		emails:    emails,
		logger:    logger.With().Str("service", "notification").Logger(),
	}
}

// Notify stores a notification, pushes it to the user's websocket topic and
// emails it. Push and email failures are logged; only storage failures are
// returned.
func (s *Service) Notify(ctx context.Context, in Input) (*Notification, error) {
	if in.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id is required", apperr.ErrValidation)
	}
	if !validTypes[in.Type] {
		return nil, fmt.Errorf("%w: invalid notification type: %s", apperr.ErrValidation, in.Type)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}

	n := &Notification{UserID: in.UserID, Type: in.Type, Title: in.Title, Body: in.Body}
	if in.Link != "" {
		n.Link = &in.Link
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, apperr.Logged(s.logger, "notification.create", err)
	}

	topic := websocket.UserTopic(n.UserID)
	if ev, err := websocket.NewEvent(topic, "notification.created", "notification", n.ID.String(), n); err == nil {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("failed to push notification")
		}
	}

	s.email(ctx, in)
	return n, nil
}

func (s *Service) email(ctx context.Context, in Input) {
	if s.mailer == nil || s.emails == nil || !s.mailer.HasTemplate(in.Type) {
		return
	}
	to, err := s.emails.Email(ctx, in.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", in.UserID.String()).Msg("no email address for notification")
		return
	}
	data := map[string]string{"title": in.Title, "body": in.Body}
	for k, v := range in.Data {
		data[k] = v
	}
	// Mailer logs its own failures.
	_ = s.mailer.SendTemplate(ctx, in.Type, to, data)
}

// NotifyQuietly is Notify for callers that must not fail because a
// notification could not be stored.
func (s *Service) NotifyQuietly(ctx context.Context, in Input) {
	if _, err := s.Notify(ctx, in); err != nil {
		s.logger.Warn().Err(err).Str("type", in.Type).Msg("notification dropped")
	}
}

func (s *Service) ListMine(ctx context.Context, caller auth.Identity, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	items, total, err := s.repo.ListByUser(ctx, caller.UserID, unreadOnly, limit, offset)
	return items, total, apperr.Logged(s.logger, "notification.list", err)
}

// MarkRead marks one of the caller's notifications read.
func (s *Service) MarkRead(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: notification not found", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Logged(s.logger, "notification.get", err)
	}
	if n.UserID != caller.UserID {
		// Someone else's notification is indistinguishable from a missing one.
		return nil, fmt.Errorf("%w: notification not found", apperr.ErrNotFound)
	}
	if n.IsRead {
		return n, nil
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return nil, apperr.Logged(s.logger, "notification.mark_read", err)
	}
	n.IsRead = true
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, caller auth.Identity) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, caller.UserID)
	return n, apperr.Logged(s.logger, "notification.mark_all_read", err)
}

func (s *Service) UnreadCount(ctx context.Context, caller auth.Identity) (int, error) {
	n, err := s.repo.CountUnread(ctx, caller.UserID)
	return n, apperr.Logged(s.logger, "notification.unread_count", err)
}
