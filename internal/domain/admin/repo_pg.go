package admin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/db"
)

type adminRepoPG struct{ pool *pgxpool.Pool }

func NewAdminRepoPG(pool *pgxpool.Pool) AdminRepository {
	return &adminRepoPG{pool: pool}
}

func (r *adminRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const adminCols = `id, owner_id, name, email, department, permissions, created_at, updated_at`

func (r *adminRepoPG) scanRow(row pgx.Row) (*AdminProfile, error) {
	var a AdminProfile
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Email, &a.Department, &a.Permissions, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &a, nil
}

func (r *adminRepoPG) Create(ctx context.Context, a *AdminProfile) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO admin_profile (`+adminCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.OwnerID, a.Name, a.Email, a.Department, a.Permissions, a.CreatedAt, a.UpdatedAt)
	return apperr.FromRepo(err)
}

func (r *adminRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AdminProfile, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+adminCols+` FROM admin_profile WHERE id = $1`, id))
}

func (r *adminRepoPG) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*AdminProfile, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+adminCols+` FROM admin_profile WHERE owner_id = $1`, ownerID))
}

func (r *adminRepoPG) Update(ctx context.Context, a *AdminProfile) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admin_profile SET name = $2, email = $3, department = $4, permissions = $5, updated_at = $6
		WHERE id = $1`,
		a.ID, a.Name, a.Email, a.Department, a.Permissions, a.UpdatedAt)
	if err != nil {
		return apperr.FromRepo(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *adminRepoPG) List(ctx context.Context, department string, limit, offset int) ([]*AdminProfile, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM admin_profile WHERE ($1 = '' OR department = $1)`, department).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+adminCols+` FROM admin_profile WHERE ($1 = '' OR department = $1)
		ORDER BY name LIMIT $2 OFFSET $3`, department, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AdminProfile
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
