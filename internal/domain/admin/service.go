package admin

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
	repo   AdminRepository
	logger zerolog.Logger
}

func NewService(repo AdminRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("service", "admin").Logger()}
}

// Create stores the caller's administrator profile.
func (s *Service) Create(ctx context.Context, caller auth.Identity, a *AdminProfile) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("%w: administrator role required", apperr.ErrForbidden)
	}
	a.OwnerID = caller.UserID
	if err := validate(a); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return fmt.Errorf("%w: an admin profile already exists for this account", apperr.ErrConflict)
		}
		return apperr.Logged(s.logger, "admin.create", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AdminProfile, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: admin profile not found", apperr.ErrNotFound)
	}
	return a, apperr.Logged(s.logger, "admin.get", err)
}

func (s *Service) Mine(ctx context.Context, caller auth.Identity) (*AdminProfile, error) {
	a, err := s.repo.GetByOwner(ctx, caller.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: admin profile not found", apperr.ErrNotFound)
	}
	return a, apperr.Logged(s.logger, "admin.mine", err)
}

func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, in *AdminProfile) (*AdminProfile, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: administrator role required", apperr.ErrForbidden)
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.Name = in.Name
	existing.Email = in.Email
	existing.Department = in.Department
	existing.Permissions = in.Permissions
	if err := validate(existing); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, apperr.Logged(s.logger, "admin.update", err)
	}
	return existing, nil
}

func (s *Service) List(ctx context.Context, department string, limit, offset int) ([]*AdminProfile, int, error) {
	items, total, err := s.repo.List(ctx, strings.TrimSpace(department), limit, offset)
	return items, total, apperr.Logged(s.logger, "admin.list", err)
}

func validate(a *AdminProfile) error {
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	if a.Permissions == nil {
		a.Permissions = []string{}
	}
	seen := make(map[string]bool, len(a.Permissions))
	perms := a.Permissions[:0]
	for _, p := range a.Permissions {
		if !validPermissions[p] {
			return fmt.Errorf("%w: unknown permission: %s", apperr.ErrValidation, p)
		}
		if !seen[p] {
			seen[p] = true
			perms = append(perms, p)
		}
	}
	a.Permissions = perms
	return nil
}
