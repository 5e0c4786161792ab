package analytics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestHandler_SnapshotAndLatest(t *testing.T) {
	svc, _ := newTestService(&staticCounts{counts: Counts{TotalVisits: 7}}, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	h := NewHandler(svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	if err := h.Snapshot(e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	if err := h.Latest(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total_visits":7`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Latest_NotFound(t *testing.T) {
	svc, _ := newTestService(&staticCounts{}, time.Now())
	h := NewHandler(svc)
	err := h.Latest(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_ListRange(t *testing.T) {
	svc, _ := newTestService(&staticCounts{}, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	h := NewHandler(svc)
	e := echo.New()
	svc.Snapshot(httptest.NewRequest(http.MethodGet, "/", nil).Context())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-10-01&to=2026-10-31", nil)
	if err := h.ListRange(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"snapshot_date":"2026-10-15T00:00:00Z"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	err := h.ListRange(e.NewContext(httptest.NewRequest(http.MethodGet, "/?from=10/01/2026", nil), httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
