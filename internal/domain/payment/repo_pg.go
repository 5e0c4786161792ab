package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/db"
)

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

func (r *paymentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const payCols = `id, visit_id, nurse_id, payer_id, amount_cents, currency, status, method,
	reference, note, paid_at, created_at, updated_at`

func (r *paymentRepoPG) scanRow(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.VisitID, &p.NurseID, &p.PayerID, &p.AmountCents, &p.Currency, &p.Status, &p.Method,
		&p.Reference, &p.Note, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &p, nil
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment (`+payCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.VisitID, p.NurseID, p.PayerID, p.AmountCents, p.Currency, p.Status, p.Method,
		p.Reference, p.Note, p.PaidAt, p.CreatedAt, p.UpdatedAt)
	return apperr.FromRepo(err)
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+payCols+` FROM payment WHERE id = $1`, id))
}

func (r *paymentRepoPG) OpenForVisit(ctx context.Context, visitID uuid.UUID) (*Payment, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+payCols+` FROM payment
		WHERE visit_id = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at DESC LIMIT 1`,
		visitID, StatusFailed, StatusRefunded))
}

func (r *paymentRepoPG) Update(ctx context.Context, p *Payment) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment SET status=$2, reference=$3, note=$4, paid_at=$5, updated_at=$6
		WHERE id = $1`,
		p.ID, p.Status, p.Reference, p.Note, p.PaidAt, p.UpdatedAt)
	if err != nil {
		return apperr.FromRepo(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *paymentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Payment, int, error) {
	var conds []string
	var args []interface{}
	idx := 1
	if f.NurseID != nil {
		conds = append(conds, fmt.Sprintf("nurse_id = $%d", idx))
		args = append(args, *f.NurseID)
		idx++
	}
	if f.PayerID != nil {
		conds = append(conds, fmt.Sprintf("payer_id = $%d", idx))
		args = append(args, *f.PayerID)
		idx++
	}
	if f.VisitID != nil {
		conds = append(conds, fmt.Sprintf("visit_id = $%d", idx))
		args = append(args, *f.VisitID)
		idx++
	}
	if f.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+payCols+` FROM payment`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *paymentRepoPG) Earnings(ctx context.Context, nurseID uuid.UUID) (*Earnings, error) {
	e := Earnings{NurseID: nurseID}
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE status = $2), 0),
			COUNT(*) FILTER (WHERE status = $2),
			COALESCE(SUM(amount_cents) FILTER (WHERE status IN ($3, $4)), 0),
			COUNT(*) FILTER (WHERE status IN ($3, $4)),
			MAX(paid_at)
		FROM payment WHERE nurse_id = $1`,
		nurseID, StatusPaid, StatusPending, StatusProcessing,
	).Scan(&e.PaidCents, &e.PaidCount, &e.PendingCents, &e.PendingCount, &e.LastPaidAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
