package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/domain/notification"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/websocket"
)

// -- Mock Repositories --

type mockConversationRepo struct {
	items map[uuid.UUID]*Conversation
}

func newMockConversationRepo() *mockConversationRepo {
	return &mockConversationRepo{items: make(map[uuid.UUID]*Conversation)}
}

func (m *mockConversationRepo) Create(_ context.Context, c *Conversation) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*Conversation, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockConversationRepo) ListByParticipant(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	var r []*Conversation
	for _, c := range m.items {
		if c.HasParticipant(userID) {
			r = append(r, c)
		}
	}
	return r, len(r), nil
}

func (m *mockConversationRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	c, ok := m.items[id]
	if !ok {
		return apperr.ErrNotFound
	}
	c.LastMessageAt = &at
	return nil
}

type mockMessageRepo struct {
	items []*Message
}

func (m *mockMessageRepo) Create(_ context.Context, msg *Message) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.items = append(m.items, msg)
	return nil
}

func (m *mockMessageRepo) ListByConversation(_ context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var r []*Message
	for _, msg := range m.items {
		if msg.ConversationID == conversationID {
			r = append(r, msg)
		}
	}
	return r, len(r), nil
}

func (m *mockMessageRepo) MarkRead(_ context.Context, conversationID, userID uuid.UUID) (int64, error) {
	var n int64
	for _, msg := range m.items {
		if msg.ConversationID != conversationID {
			continue
		}
		read := false
		for _, r := range msg.ReadBy {
			if r == userID {
				read = true
			}
		}
		if !read {
			msg.ReadBy = append(msg.ReadBy, userID)
			n++
		}
	}
	return n, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Input
}

func (n *recordingNotifier) NotifyQuietly(_ context.Context, in notification.Input) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, in)
}

type recordingPublisher struct {
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.events = append(p.events, ev)
	return nil
}

type staticSenders map[uuid.UUID]string

func (s staticSenders) Email(_ context.Context, id uuid.UUID) (string, error) {
	e, ok := s[id]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return e, nil
}

type fixture struct {
	svc       *Service
	convs     *mockConversationRepo
	msgs      *mockMessageRepo
	notifier  *recordingNotifier
	publisher *recordingPublisher
	nurse     auth.Identity
	pharmacy  auth.Identity
	stranger  auth.Identity
	admin     auth.Identity
}

func newFixture() *fixture {
	f := &fixture{
		convs:     newMockConversationRepo(),
		msgs:      &mockMessageRepo{},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		nurse:     auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleNurse}},
		pharmacy:  auth.Identity{UserID: uuid.New(), Roles: []string{auth.RolePharmacy}},
		stranger:  auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleNurse}},
		admin:     auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleAdmin}},
	}
	senders := staticSenders{f.pharmacy.UserID: "dispatch@eastside.example"}
	f.svc = NewService(f.convs, f.msgs, f.publisher, f.notifier, senders, zerolog.Nop())
	return f
}

func (f *fixture) start(t *testing.T) *Conversation {
	t.Helper()
	c, _, err := f.svc.Start(context.Background(), f.pharmacy, StartRequest{
		ParticipantIDs: []uuid.UUID{f.nurse.UserID},
		Subject:        "IVIG visit",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c
}

func TestStart_IncludesCallerAndDedupes(t *testing.T) {
	f := newFixture()
	c, msg, err := f.svc.Start(context.Background(), f.pharmacy, StartRequest{
		ParticipantIDs: []uuid.UUID{f.nurse.UserID, f.nurse.UserID, f.pharmacy.UserID, uuid.Nil},
		Subject:        "  Schedule  ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Error("expected no first message without a body")
	}
	if len(c.ParticipantIDs) != 2 {
		t.Fatalf("expected 2 participants, got %v", c.ParticipantIDs)
	}
	if c.ParticipantIDs[0] != f.pharmacy.UserID {
		t.Error("expected caller as first participant")
	}
	if c.Subject != "Schedule" {
		t.Errorf("expected trimmed subject, got %q", c.Subject)
	}
}

func TestStart_RequiresAnotherParticipant(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Start(context.Background(), f.pharmacy, StartRequest{ParticipantIDs: []uuid.UUID{f.pharmacy.UserID}})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStart_Unauthenticated(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Start(context.Background(), auth.Identity{}, StartRequest{ParticipantIDs: []uuid.UUID{f.nurse.UserID}})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestStart_InvalidFirstMessageCreatesNothing(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Start(context.Background(), f.pharmacy, StartRequest{
		ParticipantIDs: []uuid.UUID{f.nurse.UserID},
		Body:           strings.Repeat("x", MaxBodyLength+1),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := len(f.convs.items); n != 0 {
		t.Errorf("expected no conversation stored, got %d", n)
	}
}

func TestStart_WithFirstMessage(t *testing.T) {
	f := newFixture()
	c, msg, err := f.svc.Start(context.Background(), f.pharmacy, StartRequest{
		ParticipantIDs: []uuid.UUID{f.nurse.UserID},
		Body:           "Can you take the Tuesday visit?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.ConversationID != c.ID {
		t.Fatalf("expected first message in conversation, got %+v", msg)
	}
	if c.LastMessageAt == nil {
		t.Error("expected last message time set")
	}
}

func TestGet_NonParticipantNotFound(t *testing.T) {
	f := newFixture()
	c := f.start(t)
	if _, err := f.svc.Get(context.Background(), f.stranger, c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), f.admin, c.ID); err != nil {
		t.Fatalf("admin should read any conversation: %v", err)
	}
}

func TestSend(t *testing.T) {
	f := newFixture()
	c := f.start(t)

	m, err := f.svc.Send(context.Background(), f.pharmacy, c.ID, "  See you at 9  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Body != "See you at 9" {
		t.Errorf("expected trimmed body, got %q", m.Body)
	}
	if len(m.ReadBy) != 1 || m.ReadBy[0] != f.pharmacy.UserID {
		t.Errorf("expected sender in read_by, got %v", m.ReadBy)
	}

	stored, _ := f.convs.GetByID(context.Background(), c.ID)
	if stored.LastMessageAt == nil {
		t.Error("expected conversation touched")
	}

	if len(f.publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.publisher.events))
	}
	ev := f.publisher.events[0]
	if ev.Topic != websocket.ConversationTopic(c.ID) || ev.Type != "message.created" {
		t.Errorf("unexpected event %s on %s", ev.Type, ev.Topic)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.UserID != f.nurse.UserID || n.Type != notification.TypeMessageReceived {
		t.Errorf("unexpected notification %+v", n)
	}
	if n.Data["sender"] != "dispatch@eastside.example" {
		t.Errorf("expected sender email, got %q", n.Data["sender"])
	}
}

func TestSend_UnknownSenderFallsBack(t *testing.T) {
	f := newFixture()
	c := f.start(t)
	if _, err := f.svc.Send(context.Background(), f.nurse, c.ID, "On my way"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.notifier.sent[0].Data["sender"]; got != "A NurseBridge user" {
		t.Errorf("expected fallback sender, got %q", got)
	}
}

func TestSend_Validation(t *testing.T) {
	f := newFixture()
	c := f.start(t)
	tests := []struct {
		name string
		body string
	}{
		{"empty", "   "},
		{"too long", strings.Repeat("a", MaxBodyLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Send(context.Background(), f.pharmacy, c.ID, tt.body); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSend_NonParticipant(t *testing.T) {
	f := newFixture()
	c := f.start(t)
	if _, err := f.svc.Send(context.Background(), f.stranger, c.ID, "hi"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.Send(context.Background(), f.admin, c.ID, "hi"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for admin outsider, got %v", err)
	}
}

func TestSend_PreviewTruncated(t *testing.T) {
	f := newFixture()
	c := f.start(t)
	body := strings.Repeat("x", previewLength+20)
	if _, err := f.svc.Send(context.Background(), f.pharmacy, c.ID, body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := f.notifier.sent[0].Data["preview"]
	if got != strings.Repeat("x", previewLength)+"..." {
		t.Errorf("unexpected preview %q", got)
	}
}

func TestListMessagesAndMarkRead(t *testing.T) {
	f := newFixture()
	c := f.start(t)
	ctx := context.Background()
	f.svc.Send(ctx, f.pharmacy, c.ID, "one")
	f.svc.Send(ctx, f.pharmacy, c.ID, "two")
	f.svc.Send(ctx, f.nurse, c.ID, "three")

	items, total, err := f.svc.ListMessages(ctx, f.nurse, c.ID, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("expected 3 messages, got %d", total)
	}

	n, err := f.svc.MarkRead(ctx, f.nurse, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 marked, got %d", n)
	}
	n, _ = f.svc.MarkRead(ctx, f.nurse, c.ID)
	if n != 0 {
		t.Errorf("expected idempotent mark read, got %d", n)
	}

	if _, _, err := f.svc.ListMessages(ctx, f.stranger, c.ID, 20, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for stranger, got %v", err)
	}
}

func TestListMine(t *testing.T) {
	f := newFixture()
	f.start(t)
	f.start(t)
	ctx := context.Background()
	if _, total, _ := f.svc.ListMine(ctx, f.nurse, 20, 0); total != 2 {
		t.Errorf("expected 2 conversations, got %d", total)
	}
	if _, total, _ := f.svc.ListMine(ctx, f.stranger, 20, 0); total != 0 {
		t.Errorf("expected none for stranger, got %d", total)
	}
}

func TestTopicAuthorizer(t *testing.T) {
	f := newFixture()
	c := f.start(t)
	authorize := TopicAuthorizer(f.convs)
	ctx := context.Background()

	tests := []struct {
		name  string
		user  uuid.UUID
		topic string
		want  bool
	}{
		{"own user topic", f.nurse.UserID, websocket.UserTopic(f.nurse.UserID), true},
		{"other user topic", f.nurse.UserID, websocket.UserTopic(f.pharmacy.UserID), false},
		{"participant conversation", f.nurse.UserID, websocket.ConversationTopic(c.ID), true},
		{"outsider conversation", f.stranger.UserID, websocket.ConversationTopic(c.ID), false},
		{"unknown conversation", f.nurse.UserID, websocket.ConversationTopic(uuid.New()), false},
		{"malformed", f.nurse.UserID, "conversation/not-a-uuid", false},
		{"unknown prefix", f.nurse.UserID, "visit/" + c.ID.String(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authorize(ctx, tt.user, tt.topic); got != tt.want {
				t.Errorf("authorize(%s) = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestStart_ParticipantOrderStable(t *testing.T) {
	f := newFixture()
	a, b := uuid.New(), uuid.New()
	c, _, err := f.svc.Start(context.Background(), f.admin, StartRequest{ParticipantIDs: []uuid.UUID{b, a}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []uuid.UUID{f.admin.UserID, b, a}
	for i := range want {
		if c.ParticipantIDs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, c.ParticipantIDs)
		}
	}
}
