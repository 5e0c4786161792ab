package visit

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/domain/notification"
	"github.com/nursebridge/nursebridge/internal/domain/nurse"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/blobstore"
	"github.com/nursebridge/nursebridge/internal/platform/mailer"
	"github.com/nursebridge/nursebridge/pkg/pagination"
)

// -- Mock Repositories --

type mockVisitRepo struct {
	items map[uuid.UUID]*Visit
}

func newMockVisitRepo() *mockVisitRepo {
	return &mockVisitRepo{items: make(map[uuid.UUID]*Visit)}
}

func (m *mockVisitRepo) Create(_ context.Context, v *Visit) error {
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	v.UpdatedAt = time.Now()
	m.items[v.ID] = v
	return nil
}

func (m *mockVisitRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockVisitRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return m.GetByID(ctx, id)
}

func (m *mockVisitRepo) Update(_ context.Context, v *Visit) error {
	if _, ok := m.items[v.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *v
	m.items[v.ID] = &cp
	return nil
}

func (m *mockVisitRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockVisitRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Visit, int, error) {
	var r []*Visit
	for _, v := range m.items {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.RequesterID != nil && v.RequesterID != *f.RequesterID {
			continue
		}
		if f.AssignedNurseID != nil && !v.IsAssignedTo(*f.AssignedNurseID) {
			continue
		}
		if f.State != "" && v.PatientState != f.State {
			continue
		}
		cp := *v
		r = append(r, &cp)
	}
	return r, len(r), nil
}

func (m *mockVisitRepo) ListJobs(ctx context.Context, q JobQuery, limit, offset int) ([]Job, int, error) {
	posted, _, _ := m.List(ctx, Filter{Status: StatusPosted}, 0, 0)
	sort.SliceStable(posted, func(i, j int) bool {
		a, b := posted[i], posted[j]
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		return a.StartTime < b.StartTime
	})
	page, total := pagination.Page(BuildJobs(posted, q), limit, offset)
	return page, total, nil
}

type mockApplicationRepo struct {
	items map[uuid.UUID]*Application
}

func newMockApplicationRepo() *mockApplicationRepo {
	return &mockApplicationRepo{items: make(map[uuid.UUID]*Application)}
}

func (m *mockApplicationRepo) Create(_ context.Context, a *Application) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockApplicationRepo) GetByID(_ context.Context, id uuid.UUID) (*Application, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockApplicationRepo) GetByVisitAndNurse(_ context.Context, visitID, nurseID uuid.UUID) (*Application, error) {
	for _, a := range m.items {
		if a.VisitID == visitID && a.NurseID == nurseID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (m *mockApplicationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	a, ok := m.items[id]
	if !ok {
		return apperr.ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockApplicationRepo) ListByVisit(_ context.Context, visitID uuid.UUID, limit, offset int) ([]*Application, int, error) {
	var r []*Application
	for _, a := range m.items {
		if a.VisitID == visitID {
			r = append(r, a)
		}
	}
	return r, len(r), nil
}

func (m *mockApplicationRepo) ListByNurse(_ context.Context, nurseID uuid.UUID, status string, limit, offset int) ([]*Application, int, error) {
	var r []*Application
	for _, a := range m.items {
		if a.NurseID == nurseID && (status == "" || a.Status == status) {
			r = append(r, a)
		}
	}
	return r, len(r), nil
}

func (m *mockApplicationRepo) RejectPending(_ context.Context, visitID, keep uuid.UUID) ([]*Application, error) {
	var r []*Application
	for _, a := range m.items {
		if a.VisitID == visitID && a.ID != keep && a.Status == ApplicationPending {
			a.Status = ApplicationRejected
			cp := *a
			r = append(r, &cp)
		}
	}
	return r, nil
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

func (n *recordingNotifier) ofType(typ string) []notification.Input {
	n.mu.Lock()
	defer n.mu.Unlock()
	var r []notification.Input
	for _, in := range n.sent {
		if in.Type == typ {
			r = append(r, in)
		}
	}
	return r
}

type stubNurses struct {
	profiles []*nurse.NurseProfile
}

func (s *stubNurses) GetByOwner(_ context.Context, ownerID uuid.UUID) (*nurse.NurseProfile, error) {
	for _, p := range s.profiles {
		if p.OwnerID == ownerID {
			return p, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *stubNurses) List(_ context.Context, f nurse.Filter, limit, offset int) ([]*nurse.NurseProfile, int, error) {
	var r []*nurse.NurseProfile
	for _, p := range s.profiles {
		if f.State != "" && p.State != f.State {
			continue
		}
		if f.OnboardingStatus != "" && p.OnboardingStatus != f.OnboardingStatus {
			continue
		}
		if f.Available != nil && p.IsAvailable != *f.Available {
			continue
		}
		r = append(r, p)
	}
	return r, len(r), nil
}

// countingTx records how many units of work ran.
type countingTx struct{ calls int }

func (t *countingTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fixture struct {
	svc      *Service
	visits   *mockVisitRepo
	apps     *mockApplicationRepo
	notifier *recordingNotifier
	nurses   *stubNurses
	tx       *countingTx
	blobs    *blobstore.Store
	pharmacy auth.Identity
}

func newFixture() *fixture {
	f := &fixture{
		visits:   newMockVisitRepo(),
		apps:     newMockApplicationRepo(),
		notifier: &recordingNotifier{},
		nurses:   &stubNurses{},
		tx:       &countingTx{},
		blobs:    blobstore.New(blobstore.NewMemoryBackend(), blobstore.Options{Versioning: true, Logger: zerolog.Nop()}),
		pharmacy: auth.Identity{UserID: uuid.New(), Roles: []string{auth.RolePharmacy}},
	}
	f.svc = NewService(Deps{
		Visits: f.visits, Applications: f.apps, Tx: f.tx, Blobs: f.blobs,
		Notifier: f.notifier, Nurses: f.nurses, Logger: zerolog.Nop(),
	})
	f.svc.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return f
}

func ptr(f float64) *float64 { return &f }

func nurseIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleNurse}}
}

func adminIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleAdmin}}
}

func newVisit(status string) *Visit {
	return &Visit{
		PharmacyName: "Eastside Infusion", PatientInitials: "J.D.",
		PatientCity: "Austin", PatientState: "tx",
		Latitude: ptr(30.2672), Longitude: ptr(-97.7431),
		ScheduledDate: time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC), StartTime: "09:00",
		DurationMinutes: 90, InfusionType: "IVIG", PayRate: 180, Status: status,
	}
}

func (f *fixture) posted(t *testing.T) *Visit {
	t.Helper()
	v := newVisit(StatusPosted)
	if err := f.svc.Create(context.Background(), f.pharmacy, v); err != nil {
		t.Fatalf("create visit: %v", err)
	}
	return v
}

// assigned returns a visit booked to a fresh nurse.
func (f *fixture) assigned(t *testing.T) (*Visit, auth.Identity) {
	t.Helper()
	v := f.posted(t)
	n := nurseIdentity()
	a, err := f.svc.Apply(context.Background(), n, v.ID, ApplyRequest{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	_, booked, err := f.svc.Accept(context.Background(), f.pharmacy, a.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return booked, n
}

// -- Visit tests --

func TestService_Create(t *testing.T) {
	f := newFixture()
	v := newVisit("")
	v.AssignedNurseID = &f.pharmacy.UserID
	if err := f.svc.Create(context.Background(), f.pharmacy, v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != StatusDraft {
		t.Errorf("expected draft, got %s", v.Status)
	}
	if v.RequesterID != f.pharmacy.UserID {
		t.Error("expected requester to be the caller")
	}
	if v.AssignedNurseID != nil || v.PostedAt != nil {
		t.Error("new visit must not be assigned or posted")
	}
	if v.Urgency != UrgencyRoutine || v.PatientState != "TX" {
		t.Errorf("expected defaults and normalization, got %s %s", v.Urgency, v.PatientState)
	}
}

func TestService_Create_Posted(t *testing.T) {
	f := newFixture()
	v := f.posted(t)
	if v.PostedAt == nil {
		t.Error("expected posted_at")
	}
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *Visit)
	}{
		{"missing infusion type", func(v *Visit) { v.InfusionType = "" }},
		{"missing date", func(v *Visit) { v.ScheduledDate = time.Time{} }},
		{"zero duration", func(v *Visit) { v.DurationMinutes = 0 }},
		{"negative pay", func(v *Visit) { v.PayRate = -1 }},
		{"bad urgency", func(v *Visit) { v.Urgency = "whenever" }},
		{"half coordinates", func(v *Visit) { v.Longitude = nil }},
		{"bad coordinates", func(v *Visit) { v.Latitude = ptr(120) }},
		{"created assigned", func(v *Visit) { v.Status = StatusAssigned }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			v := newVisit("")
			tt.mutate(v)
			if err := f.svc.Create(context.Background(), f.pharmacy, v); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_Update(t *testing.T) {
	f := newFixture()
	v := newVisit("")
	f.svc.Create(context.Background(), f.pharmacy, v)

	in := newVisit("")
	in.PayRate = 220
	in.Status = StatusCompleted
	updated, err := f.svc.Update(context.Background(), f.pharmacy, v.ID, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.PayRate != 220 {
		t.Error("expected pay rate to change")
	}
	if updated.Status != StatusDraft {
		t.Error("update must not change status")
	}

	other := auth.Identity{UserID: uuid.New(), Roles: []string{auth.RolePharmacy}}
	if _, err := f.svc.Update(context.Background(), other, v.ID, in); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestService_Delete_DraftOnly(t *testing.T) {
	f := newFixture()
	draft := newVisit("")
	f.svc.Create(context.Background(), f.pharmacy, draft)
	posted := f.posted(t)

	if err := f.svc.Delete(context.Background(), f.pharmacy, posted.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict deleting a posted visit, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), f.pharmacy, draft.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), draft.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestService_SetStatus_AnyValidValue(t *testing.T) {
	f := newFixture()
	v := newVisit("")
	f.svc.Create(context.Background(), f.pharmacy, v)

	got, err := f.svc.SetStatus(context.Background(), f.pharmacy, v.ID, StatusCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Errorf("expected completed with timestamp, got %s", got.Status)
	}

	got, err = f.svc.SetStatus(context.Background(), f.pharmacy, v.ID, StatusDraft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusDraft {
		t.Errorf("expected draft, got %s", got.Status)
	}

	if _, err := f.svc.SetStatus(context.Background(), f.pharmacy, v.ID, "archived"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.svc.SetStatus(context.Background(), nurseIdentity(), v.ID, StatusPosted); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for a stranger, got %v", err)
	}
}

func TestService_Shortcuts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v := newVisit("")
	f.svc.Create(ctx, f.pharmacy, v)

	if _, err := f.svc.Confirm(ctx, f.pharmacy, v.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict confirming a draft, got %v", err)
	}
	posted, err := f.svc.Post(ctx, f.pharmacy, v.ID)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if posted.Status != StatusPosted || posted.PostedAt == nil {
		t.Errorf("expected posted with timestamp, got %s", posted.Status)
	}
	if _, err := f.svc.Post(ctx, f.pharmacy, v.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict posting twice, got %v", err)
	}

	booked, n := f.assigned(t)
	confirmed, err := f.svc.Confirm(ctx, n, booked.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}
	if len(f.notifier.ofType(notification.TypeVisitConfirmed)) != 1 {
		t.Error("expected requester to be notified of confirmation")
	}

	done, err := f.svc.Complete(ctx, n, booked.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Errorf("expected completed, got %s", done.Status)
	}
	completed := f.notifier.ofType(notification.TypeVisitCompleted)
	if len(completed) != 1 || completed[0].UserID != f.pharmacy.UserID {
		t.Errorf("expected requester completion notice, got %+v", completed)
	}

	if _, err := f.svc.Cancel(ctx, f.pharmacy, booked.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict cancelling a completed visit, got %v", err)
	}
}

func TestService_NotificationsFillEmailTemplates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	applicant, other := nurseIdentity(), nurseIdentity()
	f.nurses.profiles = []*nurse.NurseProfile{
		{OwnerID: applicant.UserID, FirstName: "Maria", LastName: "Lopez", State: "TX",
			OnboardingStatus: nurse.OnboardingApproved, IsAvailable: true},
		{OwnerID: other.UserID, FirstName: "Dana", LastName: "Kim", State: "TX",
			OnboardingStatus: nurse.OnboardingApproved, IsAvailable: true},
	}

	v := f.posted(t)
	a, err := f.svc.Apply(ctx, applicant, v.ID, ApplyRequest{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := f.svc.Apply(ctx, other, v.ID, ApplyRequest{}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, _, err := f.svc.Accept(ctx, f.pharmacy, a.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, applicant, v.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.Complete(ctx, applicant, v.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	engine := mailer.NewTemplateEngine()
	seen := map[string]bool{}
	for _, in := range f.notifier.sent {
		if !engine.Has(in.Type) {
			continue
		}
		data := map[string]string{"title": in.Title, "body": in.Body}
		for k, v := range in.Data {
			data[k] = v
		}
		subject, body, err := engine.Render(in.Type, data)
		if err != nil {
			t.Fatalf("render %s: %v", in.Type, err)
		}
		if strings.Contains(subject+body, "{{") {
			t.Errorf("%s left a placeholder: %q / %q", in.Type, subject, body)
		}
		seen[in.Type] = true
	}
	for _, typ := range []string{
		notification.TypeVisitPosted, notification.TypeApplicationReceived, notification.TypeApplicationAccepted,
		notification.TypeApplicationRejected, notification.TypeVisitConfirmed, notification.TypeVisitCompleted,
	} {
		if !seen[typ] {
			t.Errorf("no %s notification was rendered", typ)
		}
	}

	confirmed := f.notifier.ofType(notification.TypeVisitConfirmed)
	if len(confirmed) != 1 || confirmed[0].Data["nurse_name"] != "Maria Lopez" {
		t.Errorf("expected confirmation from Maria Lopez, got %+v", confirmed)
	}
}

func TestService_Cancel_NotifiesNurse(t *testing.T) {
	f := newFixture()
	booked, n := f.assigned(t)

	got, err := f.svc.Cancel(context.Background(), f.pharmacy, booked.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	var found bool
	for _, in := range f.notifier.ofType(notification.TypeSystem) {
		if in.UserID == n.UserID && in.Title == "Visit cancelled" {
			found = true
		}
	}
	if !found {
		t.Error("expected assigned nurse to be told about the cancellation")
	}
}

func TestService_Post_AlertsNearbyNurses(t *testing.T) {
	f := newFixture()
	near := &nurse.NurseProfile{OwnerID: uuid.New(), State: "TX", OnboardingStatus: nurse.OnboardingApproved,
		IsAvailable: true, ServiceRadiusMiles: 25, Latitude: ptr(30.30), Longitude: ptr(-97.70)}
	far := &nurse.NurseProfile{OwnerID: uuid.New(), State: "TX", OnboardingStatus: nurse.OnboardingApproved,
		IsAvailable: true, ServiceRadiusMiles: 10, Latitude: ptr(29.42), Longitude: ptr(-98.49)}
	busy := &nurse.NurseProfile{OwnerID: uuid.New(), State: "TX", OnboardingStatus: nurse.OnboardingApproved}
	f.nurses.profiles = []*nurse.NurseProfile{near, far, busy}

	f.posted(t)
	alerts := f.notifier.ofType(notification.TypeVisitPosted)
	if len(alerts) != 1 || alerts[0].UserID != near.OwnerID {
		t.Fatalf("expected only the nearby nurse to be alerted, got %+v", alerts)
	}
	if alerts[0].Data["city"] != "Austin" {
		t.Errorf("expected template data, got %v", alerts[0].Data)
	}
}

func TestService_List_InvalidStatus(t *testing.T) {
	f := newFixture()
	if _, _, err := f.svc.List(context.Background(), Filter{Status: "archived"}, 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// -- Job board tests --

func TestService_JobBoard(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	nearby := newVisit(StatusPosted)
	nearby.PayRate = 100
	far := newVisit(StatusPosted)
	far.Latitude, far.Longitude = ptr(32.7767), ptr(-96.7970)
	far.PayRate = 300
	draft := newVisit("")
	for _, v := range []*Visit{nearby, far, draft} {
		if err := f.svc.Create(ctx, f.pharmacy, v); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n := nurseIdentity()
	f.nurses.profiles = []*nurse.NurseProfile{{OwnerID: n.UserID, Latitude: ptr(30.27), Longitude: ptr(-97.74)}}

	jobs, total, err := f.svc.JobBoard(ctx, n, JobQuery{SortBy: SortDistance}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 posted jobs, got %d", total)
	}
	if jobs[0].ID != nearby.ID || jobs[0].DistanceMiles == nil {
		t.Error("expected closest job first with distance")
	}

	jobs, _, _ = f.svc.JobBoard(ctx, n, JobQuery{SortBy: SortPay}, 20, 0)
	if jobs[0].ID != far.ID {
		t.Error("expected best paying job first")
	}

	jobs, total, _ = f.svc.JobBoard(ctx, n, JobQuery{SortBy: SortDistance, MaxDistanceMiles: 50}, 20, 0)
	if total != 1 || jobs[0].ID != nearby.ID {
		t.Errorf("expected distance filter to keep only the close job, got %d", total)
	}

	_, total, _ = f.svc.JobBoard(ctx, n, JobQuery{}, 1, 1)
	if total != 2 {
		t.Errorf("expected unpaged total, got %d", total)
	}
}

func TestService_JobBoard_RanksEveryUpcomingVisit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 600; i++ {
		v := newVisit(StatusPosted)
		v.PayRate = 100
		v.ScheduledDate = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i%30)
		if err := f.svc.Create(ctx, f.pharmacy, v); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	best := newVisit(StatusPosted)
	best.PayRate = 999
	best.ScheduledDate = time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	stale := newVisit(StatusPosted)
	stale.PayRate = 5000
	stale.ScheduledDate = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for _, v := range []*Visit{best, stale} {
		if err := f.svc.Create(ctx, f.pharmacy, v); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	jobs, total, err := f.svc.JobBoard(ctx, nurseIdentity(), JobQuery{SortBy: SortPay}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 601 {
		t.Errorf("expected 601 upcoming jobs, got %d", total)
	}
	if len(jobs) != 20 {
		t.Fatalf("expected a full page, got %d", len(jobs))
	}
	if jobs[0].ID != best.ID {
		t.Errorf("expected the $999 visit first, got %v", jobs[0].PayRate)
	}
	for _, j := range jobs {
		if j.ID == stale.ID {
			t.Error("past visit listed on the job board")
		}
	}
}

func TestBuildJobs_ScheduledFrom(t *testing.T) {
	past := newVisit(StatusPosted)
	past.ScheduledDate = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	today := newVisit(StatusPosted)
	today.ScheduledDate = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	jobs := BuildJobs([]*Visit{past, today}, JobQuery{ScheduledFrom: today.ScheduledDate})
	if len(jobs) != 1 || jobs[0].Visit != today {
		t.Errorf("expected only today's visit, got %d jobs", len(jobs))
	}
}

func TestService_JobBoard_NeedsLocationForDistance(t *testing.T) {
	f := newFixture()
	if _, _, err := f.svc.JobBoard(context.Background(), nurseIdentity(), JobQuery{SortBy: SortDistance}, 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := f.svc.JobBoard(context.Background(), nurseIdentity(), JobQuery{SortBy: "rating"}, 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for unknown sort, got %v", err)
	}
	_, _, err := f.svc.JobBoard(context.Background(), nurseIdentity(),
		JobQuery{SortBy: SortDistance, Origin: &Origin{Latitude: 30, Longitude: -97}}, 20, 0)
	if err != nil {
		t.Fatalf("explicit origin should be accepted: %v", err)
	}
}

// -- Application tests --

func TestService_Apply(t *testing.T) {
	f := newFixture()
	v := f.posted(t)
	n := nurseIdentity()
	f.nurses.profiles = []*nurse.NurseProfile{{OwnerID: n.UserID, FirstName: "Ana", LastName: "Reyes"}}

	a, err := f.svc.Apply(context.Background(), n, v.ID, ApplyRequest{Message: " Available all morning ", ProposedRate: ptr(190)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != ApplicationPending || a.NurseID != n.UserID || a.Message != "Available all morning" {
		t.Errorf("unexpected application: %+v", a)
	}
	received := f.notifier.ofType(notification.TypeApplicationReceived)
	if len(received) != 1 || received[0].UserID != f.pharmacy.UserID || received[0].Data["nurse_name"] != "Ana Reyes" {
		t.Errorf("expected requester notification, got %+v", received)
	}

	if _, err := f.svc.Apply(context.Background(), n, v.ID, ApplyRequest{}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict on duplicate application, got %v", err)
	}
}

func TestService_Apply_Errors(t *testing.T) {
	f := newFixture()
	draft := newVisit("")
	f.svc.Create(context.Background(), f.pharmacy, draft)
	if _, err := f.svc.Apply(context.Background(), nurseIdentity(), draft.ID, ApplyRequest{}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict for unposted visit, got %v", err)
	}
	v := f.posted(t)
	if _, err := f.svc.Apply(context.Background(), nurseIdentity(), v.ID, ApplyRequest{ProposedRate: ptr(-5)}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.svc.Apply(context.Background(), nurseIdentity(), uuid.New(), ApplyRequest{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_Accept(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v := f.posted(t)
	winner, loser1, loser2 := nurseIdentity(), nurseIdentity(), nurseIdentity()
	a1, _ := f.svc.Apply(ctx, winner, v.ID, ApplyRequest{})
	a2, _ := f.svc.Apply(ctx, loser1, v.ID, ApplyRequest{})
	a3, _ := f.svc.Apply(ctx, loser2, v.ID, ApplyRequest{})
	f.svc.Withdraw(ctx, loser2, a3.ID)

	if _, _, err := f.svc.Accept(ctx, nurseIdentity(), a1.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for non-requester, got %v", err)
	}

	txBefore := f.tx.calls
	app, booked, err := f.svc.Accept(ctx, f.pharmacy, a1.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.tx.calls != txBefore+1 {
		t.Error("expected accept to run in one transaction")
	}
	if app.Status != ApplicationAccepted {
		t.Errorf("expected accepted, got %s", app.Status)
	}
	if booked.Status != StatusAssigned || !booked.IsAssignedTo(winner.UserID) {
		t.Errorf("expected visit assigned to winner, got %s", booked.Status)
	}
	if got, _ := f.apps.GetByID(ctx, a2.ID); got.Status != ApplicationRejected {
		t.Errorf("expected other pending application rejected, got %s", got.Status)
	}
	if got, _ := f.apps.GetByID(ctx, a3.ID); got.Status != ApplicationWithdrawn {
		t.Errorf("withdrawn application must stay withdrawn, got %s", got.Status)
	}
	if len(f.notifier.ofType(notification.TypeApplicationAccepted)) != 1 {
		t.Error("expected acceptance notification")
	}
	rejected := f.notifier.ofType(notification.TypeApplicationRejected)
	if len(rejected) != 1 || rejected[0].UserID != loser1.UserID {
		t.Errorf("expected rejection notice for the other applicant, got %+v", rejected)
	}

	if _, _, err := f.svc.Accept(ctx, f.pharmacy, a2.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict accepting a second applicant, got %v", err)
	}
}

func TestService_WithdrawAndReject(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v := f.posted(t)
	n := nurseIdentity()
	a, _ := f.svc.Apply(ctx, n, v.ID, ApplyRequest{})

	if _, err := f.svc.Withdraw(ctx, nurseIdentity(), a.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	rejected, err := f.svc.Reject(ctx, f.pharmacy, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Status != ApplicationRejected {
		t.Errorf("expected rejected, got %s", rejected.Status)
	}
	if _, err := f.svc.Withdraw(ctx, n, a.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict withdrawing a rejected application, got %v", err)
	}
}

func TestService_ListApplications(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v := f.posted(t)
	n := nurseIdentity()
	f.svc.Apply(ctx, n, v.ID, ApplyRequest{})
	f.svc.Apply(ctx, nurseIdentity(), v.ID, ApplyRequest{})

	_, total, err := f.svc.ListApplications(ctx, f.pharmacy, v.ID, 20, 0)
	if err != nil || total != 2 {
		t.Fatalf("expected 2 applications, got %d %v", total, err)
	}
	if _, _, err := f.svc.ListApplications(ctx, n, v.ID, 20, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for applicant, got %v", err)
	}

	_, total, _ = f.svc.ListMyApplications(ctx, n, ApplicationPending, 20, 0)
	if total != 1 {
		t.Errorf("expected 1 pending application, got %d", total)
	}
	if _, _, err := f.svc.ListMyApplications(ctx, n, "lost", 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// -- Documentation tests --

func TestService_Documents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	booked, n := f.assigned(t)

	up := blobstore.Upload{FileName: "infusion log.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 log")}
	if _, _, err := f.svc.UploadDocument(ctx, nurseIdentity(), booked.ID, up); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for another nurse, got %v", err)
	}

	v, info, err := f.svc.UploadDocument(ctx, n, booked.ID, up)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantKey := "visit-documents/" + booked.ID.String() + "/infusion_log.pdf"
	if info.Key != wantKey || len(v.Documents) != 1 || v.Documents[0] != wantKey {
		t.Errorf("unexpected key %q / %v", info.Key, v.Documents)
	}

	v, _, err = f.svc.UploadDocument(ctx, n, booked.ID, up)
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if len(v.Documents) != 1 {
		t.Errorf("re-upload must not duplicate the key, got %v", v.Documents)
	}
	versions, _ := f.blobs.Versions(ctx, wantKey)
	if len(versions) != 2 {
		t.Errorf("expected 2 stored versions, got %d", len(versions))
	}

	rc, _, err := f.svc.OpenDocument(ctx, f.pharmacy, booked.ID, "infusion log.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "%PDF-1.4 log" {
		t.Errorf("unexpected body %q", body)
	}

	if _, _, err := f.svc.OpenDocument(ctx, nurseIdentity(), booked.ID, "infusion log.pdf"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, _, err := f.svc.OpenDocument(ctx, f.pharmacy, booked.ID, "other.pdf"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	noted, err := f.svc.SaveDocumentation(ctx, n, booked.ID, "  Patient tolerated infusion well. ")
	if err != nil {
		t.Fatalf("documentation: %v", err)
	}
	if !strings.HasPrefix(noted.DocumentationNotes, "Patient") {
		t.Errorf("expected trimmed notes, got %q", noted.DocumentationNotes)
	}
}

func TestService_Documents_RequiresBooking(t *testing.T) {
	f := newFixture()
	v := f.posted(t)
	if _, err := f.svc.SaveDocumentation(context.Background(), adminIdentity(), v.ID, "x"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict documenting an unbooked visit, got %v", err)
	}
}
