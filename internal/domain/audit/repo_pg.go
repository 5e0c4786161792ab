package audit

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

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewAuditRepoPG(pool *pgxpool.Pool) AuditRepository {
	return &auditRepoPG{pool: pool}
}

func (r *auditRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const auditCols = `id, user_id, action, entity_type, entity_id, path, method, status,
	ip_address, user_agent, request_id, created_at`

func (r *auditRepoPG) scanRow(row pgx.Row) (*AuditLog, error) {
	var l AuditLog
	err := row.Scan(&l.ID, &l.UserID, &l.Action, &l.EntityType, &l.EntityID, &l.Path, &l.Method, &l.Status,
		&l.IPAddress, &l.UserAgent, &l.RequestID, &l.CreatedAt)
	if err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &l, nil
}

func (r *auditRepoPG) Create(ctx context.Context, l *AuditLog) error {
	l.ID = uuid.New()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_log (`+auditCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		l.ID, l.UserID, l.Action, l.EntityType, l.EntityID, l.Path, l.Method, l.Status,
		l.IPAddress, l.UserAgent, l.RequestID, l.CreatedAt)
	return apperr.FromRepo(err)
}

func (r *auditRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AuditLog, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+auditCols+` FROM audit_log WHERE id = $1`, id))
}

func (r *auditRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*AuditLog, int, error) {
	var conds []string
	var args []interface{}
	idx := 1
	add := func(cond string, v interface{}) {
		conds = append(conds, fmt.Sprintf(cond, idx))
		args = append(args, v)
		idx++
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.EntityType != "" {
		add("entity_type = $%d", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+auditCols+` FROM audit_log`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AuditLog
	for rows.Next() {
		l, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}
