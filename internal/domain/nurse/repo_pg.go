package nurse

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

type nurseRepoPG struct{ pool *pgxpool.Pool }

func NewNurseRepoPG(pool *pgxpool.Pool) NurseRepository {
	return &nurseRepoPG{pool: pool}
}

func (r *nurseRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const nurseCols = `id, owner_id, first_name, last_name, email, phone,
	license_number, license_state, specialties, certifications,
	years_experience, hourly_rate, service_radius_miles,
	address, city, state, zip, latitude, longitude, bio,
	onboarding_step, onboarding_status, review_notes, is_available,
	created_at, updated_at`

func (r *nurseRepoPG) scanRow(row pgx.Row) (*NurseProfile, error) {
	var n NurseProfile
	err := row.Scan(&n.ID, &n.OwnerID, &n.FirstName, &n.LastName, &n.Email, &n.Phone,
		&n.LicenseNumber, &n.LicenseState, &n.Specialties, &n.Certifications,
		&n.YearsExperience, &n.HourlyRate, &n.ServiceRadiusMiles,
		&n.Address, &n.City, &n.State, &n.Zip, &n.Latitude, &n.Longitude, &n.Bio,
		&n.OnboardingStep, &n.OnboardingStatus, &n.ReviewNotes, &n.IsAvailable,
		&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &n, nil
}

func (r *nurseRepoPG) Create(ctx context.Context, n *NurseProfile) error {
	n.ID = uuid.New()
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO nurse_profile (id, owner_id, first_name, last_name, email, phone,
			license_number, license_state, specialties, certifications,
			years_experience, hourly_rate, service_radius_miles,
			address, city, state, zip, latitude, longitude, bio,
			onboarding_step, onboarding_status, review_notes, is_available,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
		n.ID, n.OwnerID, n.FirstName, n.LastName, n.Email, n.Phone,
		n.LicenseNumber, n.LicenseState, n.Specialties, n.Certifications,
		n.YearsExperience, n.HourlyRate, n.ServiceRadiusMiles,
		n.Address, n.City, n.State, n.Zip, n.Latitude, n.Longitude, n.Bio,
		n.OnboardingStep, n.OnboardingStatus, n.ReviewNotes, n.IsAvailable,
		n.CreatedAt, n.UpdatedAt)
	return apperr.FromRepo(err)
}

func (r *nurseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*NurseProfile, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+nurseCols+` FROM nurse_profile WHERE id = $1`, id))
}

func (r *nurseRepoPG) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*NurseProfile, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+nurseCols+` FROM nurse_profile WHERE owner_id = $1`, ownerID))
}

func (r *nurseRepoPG) Update(ctx context.Context, n *NurseProfile) error {
	n.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE nurse_profile SET first_name=$2, last_name=$3, email=$4, phone=$5,
			license_number=$6, license_state=$7, specialties=$8, certifications=$9,
			years_experience=$10, hourly_rate=$11, service_radius_miles=$12,
			address=$13, city=$14, state=$15, zip=$16, latitude=$17, longitude=$18, bio=$19,
			onboarding_step=$20, onboarding_status=$21, review_notes=$22, is_available=$23,
			updated_at=$24
		WHERE id = $1`,
		n.ID, n.FirstName, n.LastName, n.Email, n.Phone,
		n.LicenseNumber, n.LicenseState, n.Specialties, n.Certifications,
		n.YearsExperience, n.HourlyRate, n.ServiceRadiusMiles,
		n.Address, n.City, n.State, n.Zip, n.Latitude, n.Longitude, n.Bio,
		n.OnboardingStep, n.OnboardingStatus, n.ReviewNotes, n.IsAvailable,
		n.UpdatedAt)
	if err != nil {
		return apperr.FromRepo(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *nurseRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*NurseProfile, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.State != "" {
		where += fmt.Sprintf(` AND state = $%d`, idx)
		args = append(args, f.State)
		idx++
	}
	if f.OnboardingStatus != "" {
		where += fmt.Sprintf(` AND onboarding_status = $%d`, idx)
		args = append(args, f.OnboardingStatus)
		idx++
	}
	if f.Available != nil {
		where += fmt.Sprintf(` AND is_available = $%d`, idx)
		args = append(args, *f.Available)
		idx++
	}
	if f.Specialty != "" {
		where += fmt.Sprintf(` AND $%d = ANY(specialties)`, idx)
		args = append(args, f.Specialty)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM nurse_profile`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + nurseCols + ` FROM nurse_profile` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*NurseProfile
	for rows.Next() {
		n, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}
