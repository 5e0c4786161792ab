package visit

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
	"github.com/nursebridge/nursebridge/internal/domain/nurse"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/blobstore"
	"github.com/nursebridge/nursebridge/internal/platform/db"
)

// postAlertLimit caps how many nurses are alerted when a visit is posted.
const postAlertLimit = 200

// Notifier delivers in-app notifications; *notification.Service implements it.
type Notifier interface {
	NotifyQuietly(ctx context.Context, in notification.Input)
}

// NurseDirectory looks up nurse profiles; *nurse.Service implements it.
type NurseDirectory interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*nurse.NurseProfile, error)
	List(ctx context.Context, f nurse.Filter, limit, offset int) ([]*nurse.NurseProfile, int, error)
}

type nopNotifier struct{}

func (nopNotifier) NotifyQuietly(context.Context, notification.Input) {}

type Service struct {
	visits   VisitRepository
	apps     ApplicationRepository
	tx       db.Transactor
	blobs    blobstore.BlobStore
	notifier Notifier
	nurses   NurseDirectory
	logger   zerolog.Logger
	now      func() time.Time
}

// Deps groups the collaborators of the visit service. Tx, Notifier and
// Nurses are optional.
type Deps struct {
	Visits       VisitRepository
	Applications ApplicationRepository
	Tx           db.Transactor
	Blobs        blobstore.BlobStore
	Notifier     Notifier
	Nurses       NurseDirectory
	Logger       zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		visits:   d.Visits,
		apps:     d.Applications,
		tx:       d.Tx,
		blobs:    d.Blobs,
		notifier: d.Notifier,
		nurses:   d.Nurses,
		logger:   d.Logger.With().Str("service", "visit").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.tx == nil {
		s.tx = db.NopTransactor{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	return s
}

// -- Visit --

// Create stores a new visit requested by the caller. Visits start as
// drafts unless created as posted.
func (s *Service) Create(ctx context.Context, caller auth.Identity, v *Visit) error {
	if !caller.IsAdmin() || v.RequesterID == uuid.Nil {
		v.RequesterID = caller.UserID
	}
	if v.RequesterID == uuid.Nil {
		return fmt.Errorf("%w: authentication required", apperr.ErrUnauthorized)
	}
	switch v.Status {
	case "":
		v.Status = StatusDraft
	case StatusDraft, StatusPosted:
	default:
		return fmt.Errorf("%w: new visits must be draft or posted", apperr.ErrValidation)
	}
	if err := validate(v); err != nil {
		return err
	}
	v.AssignedNurseID = nil
	v.Documents = []string{}
	v.DocumentationNotes = ""
	v.CompletedAt = nil
	v.PostedAt = nil
	if v.Status == StatusPosted {
		now := s.now()
		v.PostedAt = &now
	}
	if err := s.visits.Create(ctx, v); err != nil {
		return apperr.Logged(s.logger, "visit.create", err)
	}
	if v.Status == StatusPosted {
		s.alertNearbyNurses(ctx, v)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := s.visits.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: visit not found", apperr.ErrNotFound)
	}
	return v, apperr.Logged(s.logger, "visit.get", err)
}

// Update replaces the editable fields of a visit that is not finished.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, in *Visit) (*Visit, error) {
	existing, err := s.requested(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusCompleted || existing.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: visit is %s", apperr.ErrConflict, existing.Status)
	}
	existing.PharmacyName = in.PharmacyName
	existing.PatientInitials = in.PatientInitials
	existing.PatientAddress = in.PatientAddress
	existing.PatientCity = in.PatientCity
	existing.PatientState = in.PatientState
	existing.PatientZip = in.PatientZip
	existing.Latitude = in.Latitude
	existing.Longitude = in.Longitude
	existing.ScheduledDate = in.ScheduledDate
	existing.StartTime = in.StartTime
	existing.DurationMinutes = in.DurationMinutes
	existing.InfusionType = in.InfusionType
	existing.Medication = in.Medication
	existing.RequiredCertifications = in.RequiredCertifications
	existing.PayRate = in.PayRate
	existing.Urgency = in.Urgency
	existing.Notes = in.Notes
	if err := validate(existing); err != nil {
		return nil, err
	}
	if err := s.visits.Update(ctx, existing); err != nil {
		return nil, apperr.Logged(s.logger, "visit.update", err)
	}
	return existing, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Visit, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, fmt.Errorf("%w: invalid status: %s", apperr.ErrValidation, f.Status)
	}
	f.State = strings.ToUpper(strings.TrimSpace(f.State))
	items, total, err := s.visits.List(ctx, f, limit, offset)
	return items, total, apperr.Logged(s.logger, "visit.list", err)
}

// Delete removes a draft visit.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	existing, err := s.requested(ctx, caller, id)
	if err != nil {
		return err
	}
	if existing.Status != StatusDraft {
		return fmt.Errorf("%w: only draft visits can be deleted", apperr.ErrConflict)
	}
	if err := s.visits.Delete(ctx, id); err != nil {
		return apperr.Logged(s.logger, "visit.delete", err)
	}
	return nil
}

// SetStatus sets any valid lifecycle status directly. The requester, the
// assigned nurse and administrators may do so.
func (s *Service) SetStatus(ctx context.Context, caller auth.Identity, id uuid.UUID, status string) (*Visit, error) {
	if !validStatuses[status] {
		return nil, fmt.Errorf("%w: invalid status: %s", apperr.ErrValidation, status)
	}
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(v.RequesterID) && !v.IsAssignedTo(caller.UserID) {
		return nil, fmt.Errorf("%w: not a party to this visit", apperr.ErrForbidden)
	}
	return s.transition(ctx, caller, v, status)
}

// Post publishes a draft visit to the job board.
func (s *Service) Post(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Visit, error) {
	v, err := s.requested(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only draft visits can be posted", apperr.ErrConflict)
	}
	return s.transition(ctx, caller, v, StatusPosted)
}

// Confirm records that the assigned nurse will attend.
func (s *Service) Confirm(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Visit, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(v.RequesterID) && !v.IsAssignedTo(caller.UserID) {
		return nil, fmt.Errorf("%w: not a party to this visit", apperr.ErrForbidden)
	}
	if v.Status != StatusAssigned {
		return nil, fmt.Errorf("%w: only assigned visits can be confirmed", apperr.ErrConflict)
	}
	return s.transition(ctx, caller, v, StatusConfirmed)
}

// Complete closes a visit that took place.
func (s *Service) Complete(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Visit, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(v.RequesterID) && !v.IsAssignedTo(caller.UserID) {
		return nil, fmt.Errorf("%w: not a party to this visit", apperr.ErrForbidden)
	}
	if v.Status != StatusAssigned && v.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: only assigned or confirmed visits can be completed", apperr.ErrConflict)
	}
	return s.transition(ctx, caller, v, StatusCompleted)
}

// Cancel withdraws a visit that has not been completed.
func (s *Service) Cancel(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Visit, error) {
	v, err := s.requested(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if v.Status == StatusCompleted || v.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: visit is already %s", apperr.ErrConflict, v.Status)
	}
	return s.transition(ctx, caller, v, StatusCancelled)
}

// transition stores a new status, maintains the lifecycle timestamps and
// notifies the other party.
func (s *Service) transition(ctx context.Context, caller auth.Identity, v *Visit, status string) (*Visit, error) {
	prev := v.Status
	now := s.now()
	v.Status = status
	switch status {
	case StatusPosted:
		if v.PostedAt == nil {
			v.PostedAt = &now
		}
	case StatusCompleted:
		v.CompletedAt = &now
	}
	if err := s.visits.Update(ctx, v); err != nil {
		return nil, apperr.Logged(s.logger, "visit.status", err)
	}
	s.logger.Info().Str("visit_id", v.ID.String()).Str("from", prev).Str("to", status).
		Str("by", caller.UserID.String()).Msg("visit status changed")

	if prev != status {
		s.notifyStatus(ctx, caller, v)
	}
	return v, nil
}

func (s *Service) notifyStatus(ctx context.Context, caller auth.Identity, v *Visit) {
	data := visitData(v)
	link := "/visits/" + v.ID.String()
	switch v.Status {
	case StatusPosted:
		s.alertNearbyNurses(ctx, v)
	case StatusConfirmed:
		if caller.UserID != v.RequesterID {
			data["nurse_name"] = "A nurse"
			if v.AssignedNurseID != nil {
				data["nurse_name"] = s.nurseName(ctx, *v.AssignedNurseID)
			}
			s.notifier.NotifyQuietly(ctx, notification.Input{
				UserID: v.RequesterID, Type: notification.TypeVisitConfirmed,
				Title: "Visit confirmed", Body: fmt.Sprintf("%s confirmed your %s visit on %s.", data["nurse_name"], v.InfusionType, data["date"]),
				Link: link, Data: data,
			})
		}
	case StatusCompleted:
		for _, uid := range s.parties(v) {
			if uid == caller.UserID {
				continue
			}
			s.notifier.NotifyQuietly(ctx, notification.Input{
				UserID: uid, Type: notification.TypeVisitCompleted,
				Title: "Visit completed", Body: fmt.Sprintf("The %s visit on %s was completed.", v.InfusionType, data["date"]),
				Link: link, Data: data,
			})
		}
	case StatusCancelled:
		if v.AssignedNurseID != nil && *v.AssignedNurseID != caller.UserID {
			s.notifier.NotifyQuietly(ctx, notification.Input{
				UserID: *v.AssignedNurseID, Type: notification.TypeSystem,
				Title: "Visit cancelled", Body: fmt.Sprintf("The %s visit on %s was cancelled.", v.InfusionType, data["date"]),
				Link: link,
			})
		}
	}
}

// alertNearbyNurses tells available nurses in the visit's state about a new
// posting. When both sides have coordinates the nurse's service radius is
// honoured.
func (s *Service) alertNearbyNurses(ctx context.Context, v *Visit) {
	if s.nurses == nil || v.PatientState == "" {
		return
	}
	avail := true
	nurses, _, err := s.nurses.List(ctx, nurse.Filter{
		State: v.PatientState, OnboardingStatus: nurse.OnboardingApproved, Available: &avail,
	}, postAlertLimit, 0)
	if err != nil {
		s.logger.Warn().Err(err).Str("visit_id", v.ID.String()).Msg("nurse lookup for posting alert failed")
		return
	}
	data := visitData(v)
	for _, n := range nurses {
		if n.HasLocation() && v.HasLocation() && n.ServiceRadiusMiles > 0 {
			if DistanceMiles(*n.Latitude, *n.Longitude, *v.Latitude, *v.Longitude) > float64(n.ServiceRadiusMiles) {
				continue
			}
		}
		s.notifier.NotifyQuietly(ctx, notification.Input{
			UserID: n.OwnerID, Type: notification.TypeVisitPosted,
			Title: "New visit near you", Body: fmt.Sprintf("%s visit on %s in %s.", v.InfusionType, data["date"], v.PatientCity),
			Link: "/jobs/" + v.ID.String(), Data: data,
		})
	}
}

// JobBoard lists upcoming posted visits for a nurse. Without an explicit
// origin the caller's profile coordinates are used.
func (s *Service) JobBoard(ctx context.Context, caller auth.Identity, q JobQuery, limit, offset int) ([]Job, int, error) {
	if q.SortBy == "" {
		q.SortBy = SortDate
	}
	if !validSorts[q.SortBy] {
		return nil, 0, fmt.Errorf("%w: invalid sort: %s", apperr.ErrValidation, q.SortBy)
	}
	if q.MaxDistanceMiles < 0 {
		return nil, 0, fmt.Errorf("%w: max_distance must not be negative", apperr.ErrValidation)
	}
	if q.Origin == nil && s.nurses != nil {
		p, err := s.nurses.GetByOwner(ctx, caller.UserID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, 0, apperr.Logged(s.logger, "visit.job_board", err)
		}
		if p != nil && p.HasLocation() {
			q.Origin = &Origin{Latitude: *p.Latitude, Longitude: *p.Longitude}
		}
	}
	if q.Origin == nil && (q.SortBy == SortDistance || q.MaxDistanceMiles > 0) {
		return nil, 0, fmt.Errorf("%w: a location is required to sort or filter by distance", apperr.ErrValidation)
	}

	now := s.now()
	q.ScheduledFrom = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	jobs, total, err := s.visits.ListJobs(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, apperr.Logged(s.logger, "visit.job_board", err)
	}
	return jobs, total, nil
}

// SaveDocumentation stores the assigned nurse's visit notes.
func (s *Service) SaveDocumentation(ctx context.Context, caller auth.Identity, id uuid.UUID, notes string) (*Visit, error) {
	v, err := s.documentable(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	v.DocumentationNotes = strings.TrimSpace(notes)
	if err := s.visits.Update(ctx, v); err != nil {
		return nil, apperr.Logged(s.logger, "visit.documentation", err)
	}
	return v, nil
}

// UploadDocument stores a file under visit-documents/{visitId}/{file} and
// attaches its key to the visit.
func (s *Service) UploadDocument(ctx context.Context, caller auth.Identity, id uuid.UUID, up blobstore.Upload) (*Visit, *blobstore.ObjectInfo, error) {
	v, err := s.documentable(ctx, caller, id)
	if err != nil {
		return nil, nil, err
	}
	key, err := blobstore.VisitDocumentKey(v.ID, up.FileName)
	if err != nil {
		return nil, nil, err
	}
	info, err := s.blobs.Put(ctx, key, up.ContentType, up.Reader())
	if err != nil {
		return nil, nil, err
	}
	if !containsString(v.Documents, key) {
		v.Documents = append(v.Documents, key)
		if err := s.visits.Update(ctx, v); err != nil {
			return nil, nil, apperr.Logged(s.logger, "visit.upload_document", err)
		}
	}
	return v, info, nil
}

// OpenDocument returns an attached document to a party of the visit. The
// caller closes the reader.
func (s *Service) OpenDocument(ctx context.Context, caller auth.Identity, id uuid.UUID, fileName string) (io.ReadCloser, *blobstore.ObjectInfo, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !caller.Owns(v.RequesterID) && !v.IsAssignedTo(caller.UserID) {
		return nil, nil, fmt.Errorf("%w: not a party to this visit", apperr.ErrForbidden)
	}
	key, err := blobstore.VisitDocumentKey(v.ID, fileName)
	if err != nil {
		return nil, nil, err
	}
	if !containsString(v.Documents, key) {
		return nil, nil, fmt.Errorf("%w: document not found", apperr.ErrNotFound)
	}
	return s.blobs.Get(ctx, key)
}

func (s *Service) documentable(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Visit, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !v.IsAssignedTo(caller.UserID) {
		return nil, fmt.Errorf("%w: only the assigned nurse can document this visit", apperr.ErrForbidden)
	}
	switch v.Status {
	case StatusAssigned, StatusConfirmed, StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: visit is %s", apperr.ErrConflict, v.Status)
	}
	return v, nil
}

// requested loads a visit the caller requested.
func (s *Service) requested(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Visit, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(v.RequesterID) {
		return nil, fmt.Errorf("%w: not your visit", apperr.ErrForbidden)
	}
	return v, nil
}

func (s *Service) parties(v *Visit) []uuid.UUID {
	ids := []uuid.UUID{v.RequesterID}
	if v.AssignedNurseID != nil {
		ids = append(ids, *v.AssignedNurseID)
	}
	return ids
}

func validate(v *Visit) error {
	if strings.TrimSpace(v.InfusionType) == "" {
		return fmt.Errorf("%w: infusion_type is required", apperr.ErrValidation)
	}
	if v.ScheduledDate.IsZero() {
		return fmt.Errorf("%w: scheduled_date is required", apperr.ErrValidation)
	}
	if v.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration_minutes must be positive", apperr.ErrValidation)
	}
	if v.PayRate < 0 {
		return fmt.Errorf("%w: pay_rate must not be negative", apperr.ErrValidation)
	}
	if v.Urgency == "" {
		v.Urgency = UrgencyRoutine
	}
	if !validUrgencies[v.Urgency] {
		return fmt.Errorf("%w: invalid urgency: %s", apperr.ErrValidation, v.Urgency)
	}
	if (v.Latitude == nil) != (v.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be set together", apperr.ErrValidation)
	}
	if v.Latitude != nil && (*v.Latitude < -90 || *v.Latitude > 90 || *v.Longitude < -180 || *v.Longitude > 180) {
		return fmt.Errorf("%w: coordinates out of range", apperr.ErrValidation)
	}
	v.PatientState = strings.ToUpper(strings.TrimSpace(v.PatientState))
	if v.RequiredCertifications == nil {
		v.RequiredCertifications = []string{}
	}
	return nil
}

// visitData is the template data shared by visit notifications.
func visitData(v *Visit) map[string]string {
	return map[string]string{
		"infusion_type": v.InfusionType,
		"date":          v.ScheduledDate.Format("Jan 2, 2006"),
		"time":          v.StartTime,
		"city":          v.PatientCity,
		"pharmacy":      v.PharmacyName,
		"pay":           fmt.Sprintf("$%.2f", v.PayRate),
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
