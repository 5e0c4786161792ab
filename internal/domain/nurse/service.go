package nurse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

type Service struct {
	repo   NurseRepository
	logger zerolog.Logger
}

func NewService(repo NurseRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("service", "nurse").Logger()}
}

// Create stores the caller's profile. Each account owns at most one.
func (s *Service) Create(ctx context.Context, caller auth.Identity, n *NurseProfile) error {
	if caller.UserID == uuid.Nil {
		return fmt.Errorf("%w: authentication required", apperr.ErrUnauthorized)
	}
	n.OwnerID = caller.UserID
	if err := validate(n); err != nil {
		return err
	}
	if _, err := s.repo.GetByOwner(ctx, caller.UserID); err == nil {
		return fmt.Errorf("%w: a nurse profile already exists for this account", apperr.ErrConflict)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return apperr.Logged(s.logger, "nurse.create", err)
	}

	n.OnboardingStep = 0
	n.OnboardingStatus = OnboardingNotStarted
	n.ReviewNotes = nil
	normalize(n)
	if err := s.repo.Create(ctx, n); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return fmt.Errorf("%w: a nurse profile already exists for this account", apperr.ErrConflict)
		}
		return apperr.Logged(s.logger, "nurse.create", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*NurseProfile, error) {
	n, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: nurse profile not found", apperr.ErrNotFound)
	}
	return n, apperr.Logged(s.logger, "nurse.get", err)
}

// GetByOwner returns the profile owned by an account.
func (s *Service) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*NurseProfile, error) {
	n, err := s.repo.GetByOwner(ctx, ownerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: nurse profile not found", apperr.ErrNotFound)
	}
	return n, apperr.Logged(s.logger, "nurse.get_by_owner", err)
}

func (s *Service) Mine(ctx context.Context, caller auth.Identity) (*NurseProfile, error) {
	return s.GetByOwner(ctx, caller.UserID)
}

// Update replaces the editable fields of a profile. Onboarding state is
// only changed through the wizard and review operations.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, in *NurseProfile) (*NurseProfile, error) {
	existing, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	applyEditable(existing, in)
	if err := validate(existing); err != nil {
		return nil, err
	}
	normalize(existing)
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, apperr.Logged(s.logger, "nurse.update", err)
	}
	return existing, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*NurseProfile, int, error) {
	if f.OnboardingStatus != "" && !validOnboardingStatuses[f.OnboardingStatus] {
		return nil, 0, fmt.Errorf("%w: invalid onboarding status: %s", apperr.ErrValidation, f.OnboardingStatus)
	}
	f.State = strings.ToUpper(strings.TrimSpace(f.State))
	items, total, err := s.repo.List(ctx, f, limit, offset)
	return items, total, apperr.Logged(s.logger, "nurse.list", err)
}

// SaveOnboardingStep applies the fields captured by one wizard step and
// records progress. Steps are 1-based, may be revisited, and may not skip
// ahead of the next incomplete step.
func (s *Service) SaveOnboardingStep(ctx context.Context, caller auth.Identity, id uuid.UUID, req OnboardingStepRequest) (*NurseProfile, error) {
	existing, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if req.Step < 1 || req.Step > len(OnboardingSteps) {
		return nil, fmt.Errorf("%w: step must be between 1 and %d", apperr.ErrValidation, len(OnboardingSteps))
	}
	if req.Step > existing.OnboardingStep+1 {
		return nil, fmt.Errorf("%w: complete step %d first", apperr.ErrValidation, existing.OnboardingStep+1)
	}
	switch existing.OnboardingStatus {
	case OnboardingSubmitted, OnboardingApproved:
		return nil, fmt.Errorf("%w: onboarding is already %s", apperr.ErrConflict, existing.OnboardingStatus)
	}

	applyEditable(existing, &req.Profile)
	if err := validate(existing); err != nil {
		return nil, err
	}
	normalize(existing)
	if req.Step > existing.OnboardingStep {
		existing.OnboardingStep = req.Step
	}
	existing.OnboardingStatus = OnboardingInProgress
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, apperr.Logged(s.logger, "nurse.onboarding_step", err)
	}
	return existing, nil
}

// SubmitOnboarding sends a completed wizard for administrator review.
func (s *Service) SubmitOnboarding(ctx context.Context, caller auth.Identity, id uuid.UUID) (*NurseProfile, error) {
	existing, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if existing.OnboardingStatus != OnboardingInProgress {
		return nil, fmt.Errorf("%w: onboarding cannot be submitted from status %s", apperr.ErrConflict, existing.OnboardingStatus)
	}
	if existing.OnboardingStep < len(OnboardingSteps)-1 {
		return nil, fmt.Errorf("%w: complete all onboarding steps before submitting", apperr.ErrValidation)
	}
	if missing := missingRequired(existing); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", apperr.ErrValidation, strings.Join(missing, ", "))
	}
	existing.OnboardingStep = len(OnboardingSteps)
	existing.OnboardingStatus = OnboardingSubmitted
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, apperr.Logged(s.logger, "nurse.submit", err)
	}
	return existing, nil
}

// ReviewOnboarding records an administrator's decision on a submitted
// profile. Approved nurses become available for work.
func (s *Service) ReviewOnboarding(ctx context.Context, caller auth.Identity, id uuid.UUID, req ReviewRequest) (*NurseProfile, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators can review onboarding", apperr.ErrForbidden)
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.OnboardingStatus != OnboardingSubmitted {
		return nil, fmt.Errorf("%w: onboarding is not awaiting review", apperr.ErrConflict)
	}
	if req.Approve {
		existing.OnboardingStatus = OnboardingApproved
		existing.IsAvailable = true
	} else {
		if strings.TrimSpace(req.Notes) == "" {
			return nil, fmt.Errorf("%w: notes are required when rejecting", apperr.ErrValidation)
		}
		existing.OnboardingStatus = OnboardingRejected
		existing.IsAvailable = false
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		existing.ReviewNotes = &notes
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, apperr.Logged(s.logger, "nurse.review", err)
	}
	s.logger.Info().Str("nurse_id", id.String()).Str("status", existing.OnboardingStatus).
		Str("reviewer", caller.UserID.String()).Msg("onboarding reviewed")
	return existing, nil
}

// owned loads a profile the caller may modify.
func (s *Service) owned(ctx context.Context, caller auth.Identity, id uuid.UUID) (*NurseProfile, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(existing.OwnerID) {
		return nil, fmt.Errorf("%w: not your profile", apperr.ErrForbidden)
	}
	return existing, nil
}

func applyEditable(dst, src *NurseProfile) {
	dst.FirstName = src.FirstName
	dst.LastName = src.LastName
	dst.Email = src.Email
	dst.Phone = src.Phone
	dst.LicenseNumber = src.LicenseNumber
	dst.LicenseState = src.LicenseState
	dst.Specialties = src.Specialties
	dst.Certifications = src.Certifications
	dst.YearsExperience = src.YearsExperience
	dst.HourlyRate = src.HourlyRate
	dst.ServiceRadiusMiles = src.ServiceRadiusMiles
	dst.Address = src.Address
	dst.City = src.City
	dst.State = src.State
	dst.Zip = src.Zip
	dst.Latitude = src.Latitude
	dst.Longitude = src.Longitude
	dst.Bio = src.Bio
	dst.IsAvailable = src.IsAvailable
}

func validate(n *NurseProfile) error {
	if strings.TrimSpace(n.FirstName) == "" {
		return fmt.Errorf("%w: first_name is required", apperr.ErrValidation)
	}
	if n.YearsExperience < 0 {
		return fmt.Errorf("%w: years_experience must not be negative", apperr.ErrValidation)
	}
	if n.HourlyRate < 0 {
		return fmt.Errorf("%w: hourly_rate must not be negative", apperr.ErrValidation)
	}
	if n.ServiceRadiusMiles < 0 {
		return fmt.Errorf("%w: service_radius_miles must not be negative", apperr.ErrValidation)
	}
	if (n.Latitude == nil) != (n.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be set together", apperr.ErrValidation)
	}
	if n.Latitude != nil && (*n.Latitude < -90 || *n.Latitude > 90) {
		return fmt.Errorf("%w: latitude out of range", apperr.ErrValidation)
	}
	if n.Longitude != nil && (*n.Longitude < -180 || *n.Longitude > 180) {
		return fmt.Errorf("%w: longitude out of range", apperr.ErrValidation)
	}
	return nil
}

func normalize(n *NurseProfile) {
	n.Email = strings.ToLower(strings.TrimSpace(n.Email))
	n.State = strings.ToUpper(strings.TrimSpace(n.State))
	n.LicenseState = strings.ToUpper(strings.TrimSpace(n.LicenseState))
	if n.Specialties == nil {
		n.Specialties = []string{}
	}
	if n.Certifications == nil {
		n.Certifications = []string{}
	}
}

func missingRequired(n *NurseProfile) []string {
	var missing []string
	if n.LastName == "" {
		missing = append(missing, "last_name")
	}
	if n.Phone == "" {
		missing = append(missing, "phone")
	}
	if n.LicenseNumber == "" {
		missing = append(missing, "license_number")
	}
	if n.LicenseState == "" {
		missing = append(missing, "license_state")
	}
	if len(n.Specialties) == 0 {
		missing = append(missing, "specialties")
	}
	if !n.HasLocation() {
		missing = append(missing, "latitude/longitude")
	}
	return missing
}
