package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
)

// maxRangeDays bounds a ListRange query.
const maxRangeDays = 366

type Service struct {
	snapshots SnapshotRepository
	counts    CountSource
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(snapshots SnapshotRepository, counts CountSource, logger zerolog.Logger) *Service {
	return &Service{
		snapshots: snapshots,
		counts:    counts,
		logger:    logger.With().Str("service", "analytics").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot computes today's totals and stores them. Running it again on the
// same day replaces the earlier snapshot.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	counts, err := s.counts.Count(ctx)
	if err != nil {
		return nil, apperr.Logged(s.logger, "analytics.count", err)
	}
	snap := &Snapshot{SnapshotDate: day(s.now()), Counts: *counts}
	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		return nil, apperr.Logged(s.logger, "analytics.upsert", err)
	}
	s.logger.Info().
		Time("date", snap.SnapshotDate).
		Int("nurses", snap.TotalNurses).
		Int("visits", snap.TotalVisits).
		Int64("gross_cents", snap.GrossPaymentsCents).
		Msg("analytics snapshot stored")
	return snap, nil
}

func (s *Service) Latest(ctx context.Context) (*Snapshot, error) {
	snap, err := s.snapshots.Latest(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: no analytics snapshot yet", apperr.ErrNotFound)
	}
	return snap, apperr.Logged(s.logger, "analytics.latest", err)
}

// ListRange returns snapshots between from and to inclusive, by date.
func (s *Service) ListRange(ctx context.Context, from, to time.Time) ([]*Snapshot, error) {
	from, to = day(from), day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to must not be before from", apperr.ErrValidation)
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: range exceeds %d days", apperr.ErrValidation, maxRangeDays)
	}
	items, err := s.snapshots.ListRange(ctx, from, to)
	return items, apperr.Logged(s.logger, "analytics.list", err)
}
