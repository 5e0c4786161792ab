package analytics

import (
	"time"

	"github.com/google/uuid"
)

// Counts are the platform totals at one point in time.
type Counts struct {
	TotalNurses        int   `json:"total_nurses"`
	ActiveNurses       int   `json:"active_nurses"`
	TotalVisits        int   `json:"total_visits"`
	PostedVisits       int   `json:"posted_visits"`
	CompletedVisits    int   `json:"completed_visits"`
	TotalApplications  int   `json:"total_applications"`
	PendingCredentials int   `json:"pending_credentials"`
	GrossPaymentsCents int64 `json:"gross_payments_cents"`
}

// Snapshot is the stored daily record of Counts. One per date.
type Snapshot struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SnapshotDate time.Time `db:"snapshot_date" json:"snapshot_date"`
	Counts
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FillRate is the share of visits that reached completion.
func (s *Snapshot) FillRate() float64 {
	if s.TotalVisits == 0 {
		return 0
	}
	return float64(s.CompletedVisits) / float64(s.TotalVisits)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
