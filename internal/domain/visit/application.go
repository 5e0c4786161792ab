package visit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nursebridge/nursebridge/internal/domain/notification"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

var validApplicationStatuses = map[string]bool{
	ApplicationPending: true, ApplicationAccepted: true, ApplicationRejected: true, ApplicationWithdrawn: true,
}

// Apply files the caller's application for a posted visit. A nurse applies
// to a visit at most once.
func (s *Service) Apply(ctx context.Context, caller auth.Identity, visitID uuid.UUID, req ApplyRequest) (*Application, error) {
	if caller.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: authentication required", apperr.ErrUnauthorized)
	}
	if req.ProposedRate != nil && *req.ProposedRate < 0 {
		return nil, fmt.Errorf("%w: proposed_rate must not be negative", apperr.ErrValidation)
	}
	v, err := s.Get(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusPosted {
		return nil, fmt.Errorf("%w: visit is not accepting applications", apperr.ErrConflict)
	}
	if v.RequesterID == caller.UserID {
		return nil, fmt.Errorf("%w: cannot apply to your own visit", apperr.ErrValidation)
	}
	if _, err := s.apps.GetByVisitAndNurse(ctx, visitID, caller.UserID); err == nil {
		return nil, fmt.Errorf("%w: you already applied to this visit", apperr.ErrConflict)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Logged(s.logger, "application.apply", err)
	}

	a := &Application{
		VisitID:      visitID,
		NurseID:      caller.UserID,
		Status:       ApplicationPending,
		Message:      strings.TrimSpace(req.Message),
		ProposedRate: req.ProposedRate,
	}
	if err := s.apps.Create(ctx, a); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, fmt.Errorf("%w: you already applied to this visit", apperr.ErrConflict)
		}
		return nil, apperr.Logged(s.logger, "application.apply", err)
	}

	data := visitData(v)
	data["nurse_name"] = s.nurseName(ctx, caller.UserID)
	s.notifier.NotifyQuietly(ctx, notification.Input{
		UserID: v.RequesterID, Type: notification.TypeApplicationReceived,
		Title: "New application", Body: fmt.Sprintf("%s applied to your %s visit on %s.", data["nurse_name"], v.InfusionType, data["date"]),
		Link: "/visits/" + v.ID.String() + "/applications", Data: data,
	})
	return a, nil
}

func (s *Service) GetApplication(ctx context.Context, id uuid.UUID) (*Application, error) {
	a, err := s.apps.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: application not found", apperr.ErrNotFound)
	}
	return a, apperr.Logged(s.logger, "application.get", err)
}

// ListApplications returns the applications on a visit to its requester.
func (s *Service) ListApplications(ctx context.Context, caller auth.Identity, visitID uuid.UUID, limit, offset int) ([]*Application, int, error) {
	if _, err := s.requested(ctx, caller, visitID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.apps.ListByVisit(ctx, visitID, limit, offset)
	return items, total, apperr.Logged(s.logger, "application.list_by_visit", err)
}

// ListMyApplications returns the caller's applications, optionally by status.
func (s *Service) ListMyApplications(ctx context.Context, caller auth.Identity, status string, limit, offset int) ([]*Application, int, error) {
	if status != "" && !validApplicationStatuses[status] {
		return nil, 0, fmt.Errorf("%w: invalid application status: %s", apperr.ErrValidation, status)
	}
	items, total, err := s.apps.ListByNurse(ctx, caller.UserID, status, limit, offset)
	return items, total, apperr.Logged(s.logger, "application.list_mine", err)
}

// Withdraw retracts a pending application.
func (s *Service) Withdraw(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Application, error) {
	a, err := s.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(a.NurseID) {
		return nil, fmt.Errorf("%w: not your application", apperr.ErrForbidden)
	}
	if a.Status != ApplicationPending {
		return nil, fmt.Errorf("%w: only pending applications can be withdrawn", apperr.ErrConflict)
	}
	if err := s.apps.UpdateStatus(ctx, a.ID, ApplicationWithdrawn); err != nil {
		return nil, apperr.Logged(s.logger, "application.withdraw", err)
	}
	a.Status = ApplicationWithdrawn
	return a, nil
}

// Accept books the applicant: the application is accepted, the visit moves
// to assigned with the applicant as its nurse, and every other pending
// application on the visit is rejected. All of it happens in one
// transaction with the visit row locked, so two concurrent accepts cannot
// both succeed.
func (s *Service) Accept(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Application, *Visit, error) {
	var (
		accepted *Application
		visit    *Visit
		rejected []*Application
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.GetApplication(ctx, id)
		if err != nil {
			return err
		}
		v, err := s.visits.GetForUpdate(ctx, a.VisitID)
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: visit not found", apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !caller.Owns(v.RequesterID) {
			return fmt.Errorf("%w: not your visit", apperr.ErrForbidden)
		}
		if a.Status != ApplicationPending {
			return fmt.Errorf("%w: application is %s", apperr.ErrConflict, a.Status)
		}
		if v.Status != StatusPosted {
			return fmt.Errorf("%w: visit is no longer open", apperr.ErrConflict)
		}

		if err := s.apps.UpdateStatus(ctx, a.ID, ApplicationAccepted); err != nil {
			return err
		}
		a.Status = ApplicationAccepted
		nurseID := a.NurseID
		v.Status = StatusAssigned
		v.AssignedNurseID = &nurseID
		if err := s.visits.Update(ctx, v); err != nil {
			return err
		}
		others, err := s.apps.RejectPending(ctx, v.ID, a.ID)
		if err != nil {
			return err
		}
		accepted, visit, rejected = a, v, others
		return nil
	})
	if err != nil {
		return nil, nil, apperr.Logged(s.logger, "application.accept", err)
	}

	s.logger.Info().Str("visit_id", visit.ID.String()).Str("nurse_id", accepted.NurseID.String()).
		Int("rejected", len(rejected)).Msg("application accepted")

	data := visitData(visit)
	link := "/visits/" + visit.ID.String()
	s.notifier.NotifyQuietly(ctx, notification.Input{
		UserID: accepted.NurseID, Type: notification.TypeApplicationAccepted,
		Title: "You're booked", Body: fmt.Sprintf("%s accepted you for the %s visit on %s.", visit.PharmacyName, visit.InfusionType, data["date"]),
		Link: link, Data: data,
	})
	for _, r := range rejected {
		s.notifyRejected(ctx, r, visit)
	}
	return accepted, visit, nil
}

// Reject declines a pending application.
func (s *Service) Reject(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Application, error) {
	a, err := s.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.requested(ctx, caller, a.VisitID)
	if err != nil {
		return nil, err
	}
	if a.Status != ApplicationPending {
		return nil, fmt.Errorf("%w: application is %s", apperr.ErrConflict, a.Status)
	}
	if err := s.apps.UpdateStatus(ctx, a.ID, ApplicationRejected); err != nil {
		return nil, apperr.Logged(s.logger, "application.reject", err)
	}
	a.Status = ApplicationRejected
	s.notifyRejected(ctx, a, v)
	return a, nil
}

func (s *Service) notifyRejected(ctx context.Context, a *Application, v *Visit) {
	data := visitData(v)
	s.notifier.NotifyQuietly(ctx, notification.Input{
		UserID: a.NurseID, Type: notification.TypeApplicationRejected,
		Title: "Visit filled", Body: fmt.Sprintf("The %s visit on %s went to another nurse.", v.InfusionType, data["date"]),
		Link: "/jobs", Data: data,
	})
}

func (s *Service) nurseName(ctx context.Context, nurseID uuid.UUID) string {
	if s.nurses != nil {
		if p, err := s.nurses.GetByOwner(ctx, nurseID); err == nil && p.FullName() != "" {
			return p.FullName()
		}
	}
	return "A nurse"
}
