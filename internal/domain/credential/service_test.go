package credential

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/domain/notification"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/blobstore"
)

// -- Mock Repository --

type mockCredentialRepo struct {
	items map[uuid.UUID]*Credential
}

func newMockCredentialRepo() *mockCredentialRepo {
	return &mockCredentialRepo{items: make(map[uuid.UUID]*Credential)}
}

func (m *mockCredentialRepo) Create(_ context.Context, c *Credential) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCredentialRepo) GetByID(_ context.Context, id uuid.UUID) (*Credential, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCredentialRepo) Update(_ context.Context, c *Credential) error {
	if _, ok := m.items[c.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCredentialRepo) ListByNurse(_ context.Context, nurseID uuid.UUID, status string, limit, offset int) ([]*Credential, int, error) {
	var r []*Credential
	for _, c := range m.items {
		if c.NurseID == nurseID && (status == "" || c.VerificationStatus == status) {
			r = append(r, c)
		}
	}
	return r, len(r), nil
}

func (m *mockCredentialRepo) ListByStatus(_ context.Context, status string, limit, offset int) ([]*Credential, int, error) {
	var r []*Credential
	for _, c := range m.items {
		if c.VerificationStatus == status {
			r = append(r, c)
		}
	}
	return r, len(r), nil
}

func (m *mockCredentialRepo) ExpireBefore(_ context.Context, cutoff time.Time) ([]*Credential, error) {
	var r []*Credential
	for _, c := range m.items {
		if c.ExpirationDate != nil && c.ExpirationDate.Before(cutoff) &&
			(c.VerificationStatus == StatusPending || c.VerificationStatus == StatusVerified) {
			c.VerificationStatus = StatusExpired
			cp := *c
			r = append(r, &cp)
		}
	}
	return r, nil
}

type recordingNotifier struct {
	sent []notification.Input
}

func (n *recordingNotifier) NotifyQuietly(_ context.Context, in notification.Input) {
	n.sent = append(n.sent, in)
}

type fixture struct {
	svc      *Service
	repo     *mockCredentialRepo
	blobs    *blobstore.Store
	notifier *recordingNotifier
	nurse    auth.Identity
	admin    auth.Identity
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockCredentialRepo(),
		blobs:    blobstore.New(blobstore.NewMemoryBackend(), blobstore.Options{Versioning: true, Logger: zerolog.Nop()}),
		notifier: &recordingNotifier{},
		nurse:    auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleNurse}},
		admin:    auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleAdmin}},
		now:      time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.blobs, f.notifier, zerolog.Nop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func pdf(name string) blobstore.Upload {
	return blobstore.Upload{FileName: name, ContentType: "application/pdf", Data: []byte("%PDF-1.4 " + name)}
}

func (f *fixture) upload(t *testing.T, req UploadRequest) *Credential {
	t.Helper()
	c, err := f.svc.Upload(context.Background(), f.nurse, req, pdf("license.pdf"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return c
}

// -- Tests --

func TestService_Upload(t *testing.T) {
	f := newFixture()
	c := f.upload(t, UploadRequest{Type: TypeRNLicense, Number: " RN-1 ", IssuingState: "tx",
		IssuedDate: date(2024, 1, 1), ExpirationDate: date(2028, 1, 1)})

	if c.NurseID != f.nurse.UserID || c.VerificationStatus != StatusPending {
		t.Errorf("unexpected credential: %+v", c)
	}
	if c.Number != "RN-1" || c.IssuingState != "TX" {
		t.Errorf("expected normalized fields, got %q %q", c.Number, c.IssuingState)
	}
	want := "nurse-credentials/" + f.nurse.UserID.String() + "/license.pdf"
	if c.DocumentKey != want {
		t.Errorf("expected key %s, got %s", want, c.DocumentKey)
	}
	if _, err := f.blobs.Stat(context.Background(), want); err != nil {
		t.Errorf("expected stored document: %v", err)
	}
}

func TestService_Upload_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"unknown type", UploadRequest{Type: "diploma"}},
		{"expires before issued", UploadRequest{Type: TypeBLS, IssuedDate: date(2026, 5, 1), ExpirationDate: date(2026, 4, 1)}},
		{"already expired", UploadRequest{Type: TypeBLS, ExpirationDate: date(2025, 1, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Upload(context.Background(), f.nurse, tt.req, pdf("x.pdf"))
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_Upload_AdminForNurse(t *testing.T) {
	f := newFixture()
	target := uuid.New()
	c, err := f.svc.Upload(context.Background(), f.admin, UploadRequest{NurseID: target, Type: TypeTBTest}, pdf("tb.pdf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.NurseID != target {
		t.Error("admin upload should be filed under the given nurse")
	}

	c, _ = f.svc.Upload(context.Background(), f.nurse, UploadRequest{NurseID: target, Type: TypeTBTest}, pdf("tb.pdf"))
	if c.NurseID != f.nurse.UserID {
		t.Error("nurses can only upload their own credentials")
	}
}

func TestService_Upload_SameFileKeepsVersions(t *testing.T) {
	f := newFixture()
	a := f.upload(t, UploadRequest{Type: TypeBLS})
	b := f.upload(t, UploadRequest{Type: TypeBLS})
	if a.DocumentKey != b.DocumentKey {
		t.Fatal("expected the same key")
	}
	versions, _ := f.blobs.Versions(context.Background(), a.DocumentKey)
	if len(versions) != 2 {
		t.Errorf("expected 2 versions, got %d", len(versions))
	}
	if a.DocumentVersion == "" || a.DocumentVersion == b.DocumentVersion {
		t.Errorf("expected distinct pinned versions, got %q and %q", a.DocumentVersion, b.DocumentVersion)
	}
}

func TestService_OpenDocument_ServesReviewedVersion(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bls, err := f.svc.Upload(ctx, f.nurse, UploadRequest{Type: TypeBLS}, blobstore.Upload{
		FileName: "card.pdf", ContentType: "application/pdf", Data: []byte("BLS card"),
	})
	if err != nil {
		t.Fatalf("upload bls: %v", err)
	}
	if _, err := f.svc.Verify(ctx, f.admin, bls.ID, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := f.svc.Upload(ctx, f.nurse, UploadRequest{Type: TypeACLS}, blobstore.Upload{
		FileName: "card.pdf", ContentType: "application/pdf", Data: []byte("ACLS card"),
	}); err != nil {
		t.Fatalf("upload acls: %v", err)
	}

	rc, info, err := f.svc.OpenDocument(ctx, f.admin, bls.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "BLS card" {
		t.Errorf("verified credential serves %q", body)
	}
	if info.VersionID != bls.DocumentVersion {
		t.Errorf("expected version %s, got %s", bls.DocumentVersion, info.VersionID)
	}
}

func TestService_Get_OwnerOrAdmin(t *testing.T) {
	f := newFixture()
	c := f.upload(t, UploadRequest{Type: TypeACLS})

	if _, err := f.svc.Get(context.Background(), f.nurse, c.ID); err != nil {
		t.Errorf("owner get failed: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), f.admin, c.ID); err != nil {
		t.Errorf("admin get failed: %v", err)
	}
	stranger := auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleNurse}}
	if _, err := f.svc.Get(context.Background(), stranger, c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for a stranger, got %v", err)
	}
	if _, _, err := f.svc.ListByNurse(context.Background(), stranger, f.nurse.UserID, "", 20, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden listing another nurse, got %v", err)
	}
}

func TestService_VerifyAndReject(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.upload(t, UploadRequest{Type: TypeIVCertification})
	b := f.upload(t, UploadRequest{Type: TypeBLS})

	_, total, _ := f.svc.ListPending(ctx, 20, 0)
	if total != 2 {
		t.Fatalf("expected 2 pending, got %d", total)
	}

	if _, err := f.svc.Verify(ctx, f.nurse, a.ID, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for nurse, got %v", err)
	}
	verified, err := f.svc.Verify(ctx, f.admin, a.ID, "checked with board")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.VerificationStatus != StatusVerified || verified.VerifiedBy == nil || *verified.VerifiedBy != f.admin.UserID {
		t.Errorf("unexpected verification: %+v", verified)
	}
	if _, err := f.svc.Verify(ctx, f.admin, a.ID, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict verifying twice, got %v", err)
	}

	if _, err := f.svc.Reject(ctx, f.admin, b.ID, " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected notes to be required, got %v", err)
	}
	rejected, err := f.svc.Reject(ctx, f.admin, b.ID, "image unreadable")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.VerificationStatus != StatusRejected || *rejected.ReviewerNotes != "image unreadable" {
		t.Errorf("unexpected rejection: %+v", rejected)
	}

	if len(f.notifier.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(f.notifier.sent))
	}
	if f.notifier.sent[0].Type != notification.TypeCredentialVerified || f.notifier.sent[0].Data["credential"] != "IV certification" {
		t.Errorf("unexpected verify notice: %+v", f.notifier.sent[0])
	}
	if f.notifier.sent[1].Type != notification.TypeCredentialRejected || f.notifier.sent[1].Data["notes"] != "image unreadable" {
		t.Errorf("unexpected reject notice: %+v", f.notifier.sent[1])
	}
}

func TestService_Verify_Expired(t *testing.T) {
	f := newFixture()
	c := f.upload(t, UploadRequest{Type: TypeBLS, ExpirationDate: date(2026, 12, 1)})
	f.now = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.svc.Verify(context.Background(), f.admin, c.ID, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict verifying an expired credential, got %v", err)
	}
}

func TestService_SweepExpired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	soon := f.upload(t, UploadRequest{Type: TypeBLS, ExpirationDate: date(2026, 11, 1)})
	later := f.upload(t, UploadRequest{Type: TypeACLS, ExpirationDate: date(2027, 6, 1)})
	never := f.upload(t, UploadRequest{Type: TypeOther})
	f.svc.Verify(ctx, f.admin, soon.ID, "")

	f.now = time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	res, err := f.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Expired != 1 {
		t.Fatalf("expected 1 expired, got %d", res.Expired)
	}
	got, _ := f.svc.Get(ctx, f.admin, soon.ID)
	if got.VerificationStatus != StatusExpired {
		t.Errorf("expected expired, got %s", got.VerificationStatus)
	}
	for _, id := range []uuid.UUID{later.ID, never.ID} {
		got, _ := f.svc.Get(ctx, f.admin, id)
		if got.VerificationStatus != StatusPending {
			t.Errorf("expected %s to stay pending, got %s", id, got.VerificationStatus)
		}
	}
	last := f.notifier.sent[len(f.notifier.sent)-1]
	if last.Title != "Credential expired" || last.UserID != f.nurse.UserID {
		t.Errorf("expected expiry notice, got %+v", last)
	}

	res, _ = f.svc.SweepExpired(ctx)
	if res.Expired != 0 {
		t.Errorf("second sweep should find nothing, got %d", res.Expired)
	}
}

func TestService_OpenDocument(t *testing.T) {
	f := newFixture()
	c := f.upload(t, UploadRequest{Type: TypeRNLicense})
	rc, info, err := f.svc.OpenDocument(context.Background(), f.admin, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.4 license.pdf" || info.ContentType != "application/pdf" {
		t.Errorf("unexpected document %q %s", body, info.ContentType)
	}
}
