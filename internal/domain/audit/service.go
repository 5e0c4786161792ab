package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/middleware"
)

// exportLimit bounds how many entries one summary or export reads.
const exportLimit = 10000

type Service struct {
	repo   AuditRepository
	logger zerolog.Logger
}

func NewService(repo AuditRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("service", "audit").Logger()}
}

// RecordAccess stores an entry captured by the audit middleware.
func (s *Service) RecordAccess(ctx context.Context, e middleware.AuditEntry) error {
	l := &AuditLog{
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Path:       e.Path,
		Method:     e.Method,
		Status:     e.StatusCode,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		RequestID:  e.RequestID,
		CreatedAt:  e.Timestamp,
	}
	if id, err := uuid.Parse(e.UserID); err == nil {
		l.UserID = &id
	}
	if !validActions[l.Action] {
		return fmt.Errorf("%w: invalid audit action: %s", apperr.ErrValidation, l.Action)
	}
	return apperr.Logged(s.logger, "audit.create", s.repo.Create(ctx, l))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AuditLog, error) {
	l, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: audit entry not found", apperr.ErrNotFound)
	}
	return l, apperr.Logged(s.logger, "audit.get", err)
}

func (s *Service) Search(ctx context.Context, f Filter, limit, offset int) ([]*AuditLog, int, error) {
	if err := validateFilter(f); err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.Search(ctx, f, limit, offset)
	return items, total, apperr.Logged(s.logger, "audit.search", err)
}

// Summarize aggregates the most recent matching entries.
func (s *Service) Summarize(ctx context.Context, f Filter) (*Summary, error) {
	items, _, err := s.Search(ctx, f, exportLimit, 0)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		ByAction:     make(map[string]int),
		ByEntityType: make(map[string]int),
		ByUser:       make(map[string]int),
	}
	for _, l := range items {
		sum.Total++
		if l.Failed() {
			sum.Failed++
		}
		sum.ByAction[l.Action]++
		sum.ByEntityType[l.EntityType]++
		user := "anonymous"
		if l.UserID != nil {
			user = l.UserID.String()
		}
		sum.ByUser[user]++

		at := l.CreatedAt
		if sum.First == nil || at.Before(*sum.First) {
			sum.First = &at
		}
		if sum.Last == nil || at.After(*sum.Last) {
			sum.Last = &at
		}
	}
	return sum, nil
}

// ExportCSV writes the most recent matching entries as CSV.
func (s *Service) ExportCSV(ctx context.Context, f Filter, w io.Writer) error {
	items, _, err := s.Search(ctx, f, exportLimit, 0)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := []string{"id", "created_at", "user_id", "action", "entity_type", "entity_id",
		"method", "path", "status", "ip_address", "user_agent", "request_id"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("audit export: write header: %w", err)
	}
	for _, l := range items {
		user := ""
		if l.UserID != nil {
			user = l.UserID.String()
		}
		record := []string{
			l.ID.String(), l.CreatedAt.Format(time.RFC3339), user, l.Action, l.EntityType, l.EntityID,
			l.Method, l.Path, strconv.Itoa(l.Status), l.IPAddress, l.UserAgent, l.RequestID,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("audit export: write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func validateFilter(f Filter) error {
	if f.Action != "" && !validActions[f.Action] {
		return fmt.Errorf("%w: invalid action: %s", apperr.ErrValidation, f.Action)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("%w: to must not be before from", apperr.ErrValidation)
	}
	return nil
}
