package nurse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

func requestAs(method, target, body string, id auth.Identity) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), id))
}

func TestHandler_CreateAndGet(t *testing.T) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	caller := nurseIdentity()

	rec := httptest.NewRecorder()
	c := e.NewContext(requestAs(http.MethodPost, "/", `{"first_name":"Ana","state":"TX","specialties":["iv_therapy"]}`, caller), rec)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var created NurseProfile
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = httptest.NewRecorder()
	c = e.NewContext(requestAs(http.MethodGet, "/", "", caller), rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	if err := h.Mine(e.NewContext(requestAs(http.MethodGet, "/", "", caller), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), created.ID.String()) {
		t.Errorf("expected own profile, got %s", rec.Body.String())
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h := NewHandler(newTestService())
	e := echo.New()
	c := e.NewContext(requestAs(http.MethodGet, "/", "", nurseIdentity()), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.Get(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Update_Forbidden(t *testing.T) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	n := &NurseProfile{FirstName: "Ana"}
	svc.Create(context.Background(), nurseIdentity(), n)

	c := e.NewContext(requestAs(http.MethodPut, "/", `{"first_name":"Eve"}`, nurseIdentity()), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())
	err := h.Update(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestHandler_List_AvailableFilter(t *testing.T) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	svc.Create(context.Background(), nurseIdentity(), &NurseProfile{FirstName: "A", IsAvailable: true})
	svc.Create(context.Background(), nurseIdentity(), &NurseProfile{FirstName: "B"})

	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(requestAs(http.MethodGet, "/?available=true", "", nurseIdentity()), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1, got %d", resp.Total)
	}

	err := h.List(e.NewContext(requestAs(http.MethodGet, "/?available=maybe", "", nurseIdentity()), httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_OnboardingFlow(t *testing.T) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	owner := nurseIdentity()
	n := &NurseProfile{FirstName: "Ana"}
	svc.Create(context.Background(), owner, n)

	profile, _ := json.Marshal(completeProfile())
	for step := 1; step <= len(OnboardingSteps)-1; step++ {
		body := `{"step":` + string(rune('0'+step)) + `,"profile":` + string(profile) + `}`
		c := e.NewContext(requestAs(http.MethodPut, "/", body, owner), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(n.ID.String())
		if err := h.SaveOnboardingStep(c); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
	}

	c := e.NewContext(requestAs(http.MethodPost, "/", "", owner), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())
	if err := h.SubmitOnboarding(c); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rec := httptest.NewRecorder()
	c = e.NewContext(requestAs(http.MethodPost, "/", `{"approve":true}`, adminIdentity()), rec)
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())
	if err := h.ReviewOnboarding(c); err != nil {
		t.Fatalf("review: %v", err)
	}
	var got NurseProfile
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.OnboardingStatus != OnboardingApproved {
		t.Errorf("expected approved, got %s", got.OnboardingStatus)
	}
}
