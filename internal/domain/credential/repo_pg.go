package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/db"
)

type credentialRepoPG struct{ pool *pgxpool.Pool }

func NewCredentialRepoPG(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepoPG{pool: pool}
}

func (r *credentialRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const credCols = `id, nurse_id, type, number, issuing_state, issued_date, expiration_date,
	document_key, document_version, file_name, verification_status, verified_by, verified_at,
	reviewer_notes, created_at, updated_at`

func (r *credentialRepoPG) scanRow(row pgx.Row) (*Credential, error) {
	var c Credential
	err := row.Scan(&c.ID, &c.NurseID, &c.Type, &c.Number, &c.IssuingState, &c.IssuedDate, &c.ExpirationDate,
		&c.DocumentKey, &c.DocumentVersion, &c.FileName, &c.VerificationStatus, &c.VerifiedBy, &c.VerifiedAt,
		&c.ReviewerNotes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &c, nil
}

func (r *credentialRepoPG) scanAll(rows pgx.Rows) ([]*Credential, error) {
	defer rows.Close()
	var items []*Credential
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *credentialRepoPG) Create(ctx context.Context, c *Credential) error {
	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO credential (`+credCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		c.ID, c.NurseID, c.Type, c.Number, c.IssuingState, c.IssuedDate, c.ExpirationDate,
		c.DocumentKey, c.DocumentVersion, c.FileName, c.VerificationStatus, c.VerifiedBy, c.VerifiedAt,
		c.ReviewerNotes, c.CreatedAt, c.UpdatedAt)
	return apperr.FromRepo(err)
}

func (r *credentialRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Credential, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+credCols+` FROM credential WHERE id = $1`, id))
}

func (r *credentialRepoPG) Update(ctx context.Context, c *Credential) error {
	c.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE credential SET type=$2, number=$3, issuing_state=$4, issued_date=$5, expiration_date=$6,
			document_key=$7, document_version=$8, file_name=$9, verification_status=$10, verified_by=$11,
			verified_at=$12, reviewer_notes=$13, updated_at=$14
		WHERE id = $1`,
		c.ID, c.Type, c.Number, c.IssuingState, c.IssuedDate, c.ExpirationDate,
		c.DocumentKey, c.DocumentVersion, c.FileName, c.VerificationStatus, c.VerifiedBy, c.VerifiedAt,
		c.ReviewerNotes, c.UpdatedAt)
	if err != nil {
		return apperr.FromRepo(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *credentialRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Credential, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM credential WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+credCols+` FROM credential WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanAll(rows)
	return items, total, err
}

func (r *credentialRepoPG) ListByNurse(ctx context.Context, nurseID uuid.UUID, status string, limit, offset int) ([]*Credential, int, error) {
	return r.list(ctx, `nurse_id = $1 AND ($2 = '' OR verification_status = $2)`, []interface{}{nurseID, status}, limit, offset)
}

func (r *credentialRepoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Credential, int, error) {
	return r.list(ctx, `verification_status = $1`, []interface{}{status}, limit, offset)
}

func (r *credentialRepoPG) ExpireBefore(ctx context.Context, cutoff time.Time) ([]*Credential, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE credential SET verification_status = $1, updated_at = $2
		WHERE expiration_date < $3 AND verification_status IN ($4, $5)
		RETURNING `+credCols,
		StatusExpired, time.Now().UTC(), cutoff, StatusPending, StatusVerified)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}
