package analytics

import (
	"context"
	"time"
)

type SnapshotRepository interface {
	// Upsert stores s, replacing any snapshot for the same date.
	Upsert(ctx context.Context, s *Snapshot) error
	Latest(ctx context.Context) (*Snapshot, error)
	ListRange(ctx context.Context, from, to time.Time) ([]*Snapshot, error)
}

// CountSource computes live platform totals.
type CountSource interface {
	Count(ctx context.Context) (*Counts, error)
}
