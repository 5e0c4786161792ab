package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(_ context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func runAudit(t *testing.T, rec AuditRecorder, method, path string, status int) {
	t.Helper()
	logger := zerolog.New(os.Stderr)
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	uid := uuid.New()
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: uid, Roles: []string{auth.RoleNurse}}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-123")

	handler := func(c echo.Context) error {
		return c.NoContent(status)
	}
	if err := Audit(logger, rec)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecordsMutation(t *testing.T) {
	rec := &mockRecorder{}
	id := uuid.New()
	runAudit(t, rec, http.MethodPut, "/api/v1/visits/"+id.String()+"/status", http.StatusOK)

	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	entry := rec.entries[0]
	if entry.Action != "update" || entry.EntityType != "visits" || entry.EntityID != id.String() {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.RequestID != "req-123" {
		t.Errorf("expected request id req-123, got %q", entry.RequestID)
	}
	if entry.UserID == "" {
		t.Error("expected user id on entry")
	}
}

func TestAudit_SkipsReadsAndAuth(t *testing.T) {
	rec := &mockRecorder{}
	runAudit(t, rec, http.MethodGet, "/api/v1/visits", http.StatusOK)
	runAudit(t, rec, http.MethodPost, "/api/v1/auth/sign-in", http.StatusOK)
	runAudit(t, rec, http.MethodPost, "/health", http.StatusOK)

	if rec.count() != 0 {
		t.Errorf("expected no entries, got %d", rec.count())
	}
}

func TestAudit_RecorderErrorDoesNotFailRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("db down")}
	runAudit(t, rec, http.MethodDelete, "/api/v1/visits/"+uuid.NewString(), http.StatusNoContent)

	if rec.count() != 1 {
		t.Errorf("expected recorder to be called once, got %d", rec.count())
	}
}

func TestExtractEntity(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		path     string
		wantType string
		wantID   string
	}{
		{"/api/v1/visits", "visits", ""},
		{"/api/v1/visits/" + id, "visits", id},
		{"/api/v1/credentials/" + id + "/verify", "credentials", id},
		{"/api/v1/nurses/me", "nurses", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		gotType, gotID := extractEntity(tt.path)
		if gotType != tt.wantType || gotID != tt.wantID {
			t.Errorf("extractEntity(%q) = (%q, %q), want (%q, %q)", tt.path, gotType, gotID, tt.wantType, tt.wantID)
		}
	}
}
