package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/domain/notification"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/blobstore"
)

// Notifier delivers in-app notifications; *notification.Service implements it.
type Notifier interface {
	NotifyQuietly(ctx context.Context, in notification.Input)
}

type nopNotifier struct{}

func (nopNotifier) NotifyQuietly(context.Context, notification.Input) {}

type Service struct {
	repo     CredentialRepository
	blobs    blobstore.BlobStore
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo CredentialRepository, blobs blobstore.BlobStore, notifier Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		repo:     repo,
		blobs:    blobs,
		notifier: notifier,
		logger:   logger.With().Str("service", "credential").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores the document under nurse-credentials/{nurseId}/{file} and
// records the credential as pending review. The credential is pinned to the
// stored version; a later upload with the same file name does not change
// the document it serves.
func (s *Service) Upload(ctx context.Context, caller auth.Identity, req UploadRequest, up blobstore.Upload) (*Credential, error) {
	nurseID := caller.UserID
	if caller.IsAdmin() && req.NurseID != uuid.Nil {
		nurseID = req.NurseID
	}
	if nurseID == uuid.Nil {
		return nil, fmt.Errorf("%w: authentication required", apperr.ErrUnauthorized)
	}
	if _, ok := typeLabels[req.Type]; !ok {
		return nil, fmt.Errorf("%w: invalid credential type: %s", apperr.ErrValidation, req.Type)
	}
	if req.IssuedDate != nil && req.ExpirationDate != nil && req.ExpirationDate.Before(*req.IssuedDate) {
		return nil, fmt.Errorf("%w: expiration_date must be after issued_date", apperr.ErrValidation)
	}
	if req.ExpirationDate != nil && req.ExpirationDate.Before(s.now()) {
		return nil, fmt.Errorf("%w: credential has already expired", apperr.ErrValidation)
	}

	key, err := blobstore.CredentialKey(nurseID, up.FileName)
	if err != nil {
		return nil, err
	}
	obj, err := s.blobs.Put(ctx, key, up.ContentType, up.Reader())
	if err != nil {
		return nil, err
	}

	c := &Credential{
		NurseID:            nurseID,
		Type:               req.Type,
		Number:             strings.TrimSpace(req.Number),
		IssuingState:       strings.ToUpper(strings.TrimSpace(req.IssuingState)),
		IssuedDate:         req.IssuedDate,
		ExpirationDate:     req.ExpirationDate,
		DocumentKey:        key,
		DocumentVersion:    obj.VersionID,
		FileName:           up.FileName,
		VerificationStatus: StatusPending,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, apperr.Logged(s.logger, "credential.upload", err)
	}
	s.logger.Info().Str("credential_id", c.ID.String()).Str("nurse_id", nurseID.String()).
		Str("type", c.Type).Msg("credential uploaded")
	return c, nil
}

// Get returns a credential to its nurse or an administrator.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Credential, error) {
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: credential not found", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Logged(s.logger, "credential.get", err)
	}
	if !caller.Owns(c.NurseID) {
		return nil, fmt.Errorf("%w: credential not found", apperr.ErrNotFound)
	}
	return c, nil
}

func (s *Service) ListByNurse(ctx context.Context, caller auth.Identity, nurseID uuid.UUID, status string, limit, offset int) ([]*Credential, int, error) {
	if !caller.Owns(nurseID) {
		return nil, 0, fmt.Errorf("%w: not your credentials", apperr.ErrForbidden)
	}
	if status != "" && !validStatuses[status] {
		return nil, 0, fmt.Errorf("%w: invalid verification status: %s", apperr.ErrValidation, status)
	}
	items, total, err := s.repo.ListByNurse(ctx, nurseID, status, limit, offset)
	return items, total, apperr.Logged(s.logger, "credential.list_by_nurse", err)
}

// ListPending returns the review queue.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*Credential, int, error) {
	items, total, err := s.repo.ListByStatus(ctx, StatusPending, limit, offset)
	return items, total, apperr.Logged(s.logger, "credential.list_pending", err)
}

// Verify approves a pending credential.
func (s *Service) Verify(ctx context.Context, caller auth.Identity, id uuid.UUID, notes string) (*Credential, error) {
	c, err := s.reviewable(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if c.ExpiredAt(s.now()) {
		return nil, fmt.Errorf("%w: credential has expired", apperr.ErrConflict)
	}
	s.review(c, caller, StatusVerified, notes)
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, apperr.Logged(s.logger, "credential.verify", err)
	}
	s.notifier.NotifyQuietly(ctx, notification.Input{
		UserID: c.NurseID, Type: notification.TypeCredentialVerified,
		Title: "Credential verified", Body: fmt.Sprintf("Your %s has been verified.", c.Label()),
		Link: "/credentials/" + c.ID.String(), Data: map[string]string{"credential": c.Label()},
	})
	return c, nil
}

// Reject declines a pending credential. Notes tell the nurse what to fix.
func (s *Service) Reject(ctx context.Context, caller auth.Identity, id uuid.UUID, notes string) (*Credential, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, fmt.Errorf("%w: notes are required when rejecting", apperr.ErrValidation)
	}
	c, err := s.reviewable(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	s.review(c, caller, StatusRejected, notes)
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, apperr.Logged(s.logger, "credential.reject", err)
	}
	s.notifier.NotifyQuietly(ctx, notification.Input{
		UserID: c.NurseID, Type: notification.TypeCredentialRejected,
		Title: "Credential needs attention", Body: fmt.Sprintf("Your %s could not be verified: %s", c.Label(), notes),
		Link: "/credentials/" + c.ID.String(), Data: map[string]string{"credential": c.Label(), "notes": notes},
	})
	return c, nil
}

func (s *Service) reviewable(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Credential, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators can review credentials", apperr.ErrForbidden)
	}
	c, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if c.VerificationStatus != StatusPending {
		return nil, fmt.Errorf("%w: credential is %s", apperr.ErrConflict, c.VerificationStatus)
	}
	return c, nil
}

func (s *Service) review(c *Credential, caller auth.Identity, status, notes string) {
	now := s.now()
	reviewer := caller.UserID
	c.VerificationStatus = status
	c.VerifiedBy = &reviewer
	c.VerifiedAt = &now
	if notes = strings.TrimSpace(notes); notes != "" {
		c.ReviewerNotes = &notes
	}
}

// OpenDocument returns the document version the credential was uploaded
// with. The caller closes the reader.
func (s *Service) OpenDocument(ctx context.Context, caller auth.Identity, id uuid.UUID) (io.ReadCloser, *blobstore.ObjectInfo, error) {
	c, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, nil, err
	}
	if c.DocumentVersion == "" {
		return s.blobs.Get(ctx, c.DocumentKey)
	}
	return s.blobs.GetVersion(ctx, c.DocumentKey, c.DocumentVersion)
}

// SweepExpired marks every pending or verified credential past its
// expiration date as expired and tells the nurses concerned.
func (s *Service) SweepExpired(ctx context.Context) (*SweepResult, error) {
	expired, err := s.repo.ExpireBefore(ctx, s.now())
	if err != nil {
		return nil, apperr.Logged(s.logger, "credential.sweep", err)
	}
	for _, c := range expired {
		s.notifier.NotifyQuietly(ctx, notification.Input{
			UserID: c.NurseID, Type: notification.TypeSystem,
			Title: "Credential expired", Body: fmt.Sprintf("Your %s has expired. Upload a current copy to keep taking visits.", c.Label()),
			Link: "/credentials/" + c.ID.String(),
		})
	}
	s.logger.Info().Int("expired", len(expired)).Msg("credential expiry sweep finished")
	return &SweepResult{Expired: len(expired)}, nil
}
