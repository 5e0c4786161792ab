package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/domain/notification"
	"github.com/nursebridge/nursebridge/internal/domain/visit"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

// VisitLookup loads visits; *visit.Service implements it.
type VisitLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
}

// Notifier delivers in-app notifications; *notification.Service implements it.
type Notifier interface {
	NotifyQuietly(ctx context.Context, in notification.Input)
}

type nopNotifier struct{}

func (nopNotifier) NotifyQuietly(context.Context, notification.Input) {}

// settleFrom lists the statuses each admin transition may start from.
var settleFrom = map[string][]string{
	StatusProcessing: {StatusPending},
	StatusPaid:       {StatusPending, StatusProcessing},
	StatusFailed:     {StatusPending, StatusProcessing},
	StatusRefunded:   {StatusPaid},
}

type Service struct {
	repo     PaymentRepository
	visits   VisitLookup
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo PaymentRepository, visits VisitLookup, notifier Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		repo:     repo,
		visits:   visits,
		notifier: notifier,
		logger:   logger.With().Str("service", "payment").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create records a pending payment for a completed visit. The payer is the
// visit's requester; the amount defaults to the visit's pay rate.
func (s *Service) Create(ctx context.Context, caller auth.Identity, req CreateRequest) (*Payment, error) {
	if req.VisitID == uuid.Nil {
		return nil, fmt.Errorf("%w: visit_id is required", apperr.ErrValidation)
	}
	v, err := s.visits.Get(ctx, req.VisitID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(v.RequesterID) {
		return nil, fmt.Errorf("%w: only the requester can pay for this visit", apperr.ErrForbidden)
	}
	if v.Status != visit.StatusCompleted {
		return nil, fmt.Errorf("%w: visit is %s, payments require a completed visit", apperr.ErrConflict, v.Status)
	}
	if v.AssignedNurseID == nil {
		return nil, fmt.Errorf("%w: visit has no assigned nurse", apperr.ErrConflict)
	}

	current, err := s.repo.OpenForVisit(ctx, v.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: visit already has a %s payment", apperr.ErrConflict, current.Status)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, apperr.Logged(s.logger, "payment.open_for_visit", err)
	}

	p := &Payment{
		VisitID:  v.ID,
		NurseID:  *v.AssignedNurseID,
		PayerID:  v.RequesterID,
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		Method:   strings.TrimSpace(req.Method),
		Status:   StatusPending,
	}
	if req.AmountCents != nil {
		p.AmountCents = *req.AmountCents
	} else {
		p.AmountCents = int64(math.Round(v.PayRate * 100))
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.Method == "" {
		p.Method = MethodDirectDeposit
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		p.Note = &note
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	// idx_payment_open_visit rejects a second open payment committed concurrently.
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, fmt.Errorf("%w: visit already has an open payment", apperr.ErrConflict)
		}
		return nil, apperr.Logged(s.logger, "payment.create", err)
	}
	s.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("visit_id", p.VisitID.String()).
		Int64("amount_cents", p.AmountCents).
		Msg("payment created")
	return p, nil
}

// Get returns a payment visible to its nurse, its payer or an admin.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: payment not found", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Logged(s.logger, "payment.get", err)
	}
	if !caller.Owns(p.NurseID) && !caller.Owns(p.PayerID) {
		return nil, fmt.Errorf("%w: payment not found", apperr.ErrNotFound)
	}
	return p, nil
}

// List filters payments. Non-admins only see their own: without an explicit
// party filter a nurse sees what they were paid and anyone else what they paid.
func (s *Service) List(ctx context.Context, caller auth.Identity, f Filter, limit, offset int) ([]*Payment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, fmt.Errorf("%w: invalid status: %s", apperr.ErrValidation, f.Status)
	}
	if !caller.IsAdmin() {
		switch {
		case f.NurseID == nil && f.PayerID == nil:
			me := caller.UserID
			if caller.HasRole(auth.RoleNurse) {
				f.NurseID = &me
			} else {
				f.PayerID = &me
			}
		case f.NurseID != nil && *f.NurseID != caller.UserID,
			f.PayerID != nil && *f.PayerID != caller.UserID:
			return nil, 0, fmt.Errorf("%w: cannot list other accounts' payments", apperr.ErrForbidden)
		}
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	return items, total, apperr.Logged(s.logger, "payment.list", err)
}

func (s *Service) MarkProcessing(ctx context.Context, caller auth.Identity, id uuid.UUID, req SettleRequest) (*Payment, error) {
	return s.settle(ctx, caller, id, StatusProcessing, req)
}

// MarkPaid settles a payment and tells the nurse.
func (s *Service) MarkPaid(ctx context.Context, caller auth.Identity, id uuid.UUID, req SettleRequest) (*Payment, error) {
	p, err := s.settle(ctx, caller, id, StatusPaid, req)
	if err != nil {
		return nil, err
	}
	amount := FormatAmount(p.AmountCents, p.Currency)
	s.notifier.NotifyQuietly(ctx, notification.Input{
		UserID: p.NurseID,
		Type:   notification.TypePaymentSent,
		Title:  "Payment sent",
		Body:   fmt.Sprintf("%s has been sent for your visit.", amount),
		Link:   "/payments/" + p.ID.String(),
		Data:   map[string]string{"amount": amount, "date": p.PaidAt.Format("Jan 2, 2006")},
	})
	return p, nil
}

func (s *Service) MarkFailed(ctx context.Context, caller auth.Identity, id uuid.UUID, req SettleRequest) (*Payment, error) {
	return s.settle(ctx, caller, id, StatusFailed, req)
}

func (s *Service) Refund(ctx context.Context, caller auth.Identity, id uuid.UUID, req SettleRequest) (*Payment, error) {
	return s.settle(ctx, caller, id, StatusRefunded, req)
}

func (s *Service) settle(ctx context.Context, caller auth.Identity, id uuid.UUID, status string, req SettleRequest) (*Payment, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", apperr.ErrForbidden)
	}
	p, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, from := range settleFrom[status] {
		if p.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: cannot mark a %s payment %s", apperr.ErrConflict, p.Status, status)
	}
	if status == StatusFailed && strings.TrimSpace(req.Note) == "" {
		return nil, fmt.Errorf("%w: a note is required when a payment fails", apperr.ErrValidation)
	}

	p.Status = status
	if ref := strings.TrimSpace(req.Reference); ref != "" {
		p.Reference = &ref
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		p.Note = &note
	}
	if status == StatusPaid {
		now := s.now()
		p.PaidAt = &now
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, apperr.Logged(s.logger, "payment.update", err)
	}
	s.logger.Info().Str("payment_id", p.ID.String()).Str("status", status).Msg("payment status changed")
	return p, nil
}

// Earnings summarizes a nurse's paid and outstanding payments.
func (s *Service) Earnings(ctx context.Context, caller auth.Identity, nurseID uuid.UUID) (*Earnings, error) {
	if !caller.Owns(nurseID) {
		return nil, fmt.Errorf("%w: cannot view another nurse's earnings", apperr.ErrForbidden)
	}
	e, err := s.repo.Earnings(ctx, nurseID)
	return e, apperr.Logged(s.logger, "payment.earnings", err)
}

func validate(p *Payment) error {
	if p.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", apperr.ErrValidation)
	}
	if len(p.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", apperr.ErrValidation)
	}
	if !validMethods[p.Method] {
		return fmt.Errorf("%w: invalid payment method: %s", apperr.ErrValidation, p.Method)
	}
	return nil
}
