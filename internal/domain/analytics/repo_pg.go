package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/db"
)

type snapshotRepoPG struct{ pool *pgxpool.Pool }

func NewSnapshotRepoPG(pool *pgxpool.Pool) SnapshotRepository {
	return &snapshotRepoPG{pool: pool}
}

func (r *snapshotRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const snapCols = `id, snapshot_date, total_nurses, active_nurses, total_visits, posted_visits,
	completed_visits, total_applications, pending_credentials, gross_payments_cents, created_at`

func (r *snapshotRepoPG) scanRow(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.SnapshotDate, &s.TotalNurses, &s.ActiveNurses, &s.TotalVisits, &s.PostedVisits,
		&s.CompletedVisits, &s.TotalApplications, &s.PendingCredentials, &s.GrossPaymentsCents, &s.CreatedAt)
	if err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &s, nil
}

func (r *snapshotRepoPG) Upsert(ctx context.Context, s *Snapshot) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO platform_analytics (`+snapCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (snapshot_date) DO UPDATE SET
			total_nurses = EXCLUDED.total_nurses,
			active_nurses = EXCLUDED.active_nurses,
			total_visits = EXCLUDED.total_visits,
			posted_visits = EXCLUDED.posted_visits,
			completed_visits = EXCLUDED.completed_visits,
			total_applications = EXCLUDED.total_applications,
			pending_credentials = EXCLUDED.pending_credentials,
			gross_payments_cents = EXCLUDED.gross_payments_cents,
			created_at = EXCLUDED.created_at
		RETURNING id`,
		s.ID, s.SnapshotDate, s.TotalNurses, s.ActiveNurses, s.TotalVisits, s.PostedVisits,
		s.CompletedVisits, s.TotalApplications, s.PendingCredentials, s.GrossPaymentsCents, s.CreatedAt)
	return apperr.FromRepo(row.Scan(&s.ID))
}

func (r *snapshotRepoPG) Latest(ctx context.Context) (*Snapshot, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+snapCols+` FROM platform_analytics ORDER BY snapshot_date DESC LIMIT 1`))
}

func (r *snapshotRepoPG) ListRange(ctx context.Context, from, to time.Time) ([]*Snapshot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+snapCols+` FROM platform_analytics
		WHERE snapshot_date BETWEEN $1 AND $2 ORDER BY snapshot_date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Snapshot
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// -- Live counts --

type countSourcePG struct{ pool *pgxpool.Pool }

// NewCountSourcePG counts directly from the domain tables.
func NewCountSourcePG(pool *pgxpool.Pool) CountSource {
	return &countSourcePG{pool: pool}
}

const countsSQL = `
	SELECT
		(SELECT COUNT(*) FROM nurse_profile),
		(SELECT COUNT(*) FROM nurse_profile WHERE onboarding_status = 'approved' AND is_available),
		(SELECT COUNT(*) FROM visit),
		(SELECT COUNT(*) FROM visit WHERE status = 'posted'),
		(SELECT COUNT(*) FROM visit WHERE status = 'completed'),
		(SELECT COUNT(*) FROM application),
		(SELECT COUNT(*) FROM credential WHERE verification_status = 'pending'),
		(SELECT COALESCE(SUM(amount_cents), 0) FROM payment WHERE status = 'paid')`

func (c *countSourcePG) Count(ctx context.Context) (*Counts, error) {
	var n Counts
	err := db.Conn(ctx, c.pool).QueryRow(ctx, countsSQL).Scan(
		&n.TotalNurses, &n.ActiveNurses, &n.TotalVisits, &n.PostedVisits,
		&n.CompletedVisits, &n.TotalApplications, &n.PendingCredentials, &n.GrossPaymentsCents)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
