package visit

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

// -- Visit --

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const visitCols = `id, requester_id, pharmacy_name, patient_initials,
	patient_address, patient_city, patient_state, patient_zip, latitude, longitude,
	scheduled_date, start_time, duration_minutes, infusion_type, medication,
	required_certifications, pay_rate, urgency, notes, status, assigned_nurse_id,
	documentation_notes, documents, posted_at, completed_at, created_at, updated_at`

// scanRow scans visitCols followed by any extra selected columns.
func (r *visitRepoPG) scanRow(row pgx.Row, extra ...interface{}) (*Visit, error) {
	var v Visit
	dest := append([]interface{}{&v.ID, &v.RequesterID, &v.PharmacyName, &v.PatientInitials,
		&v.PatientAddress, &v.PatientCity, &v.PatientState, &v.PatientZip, &v.Latitude, &v.Longitude,
		&v.ScheduledDate, &v.StartTime, &v.DurationMinutes, &v.InfusionType, &v.Medication,
		&v.RequiredCertifications, &v.PayRate, &v.Urgency, &v.Notes, &v.Status, &v.AssignedNurseID,
		&v.DocumentationNotes, &v.Documents, &v.PostedAt, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &v, nil
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit (`+visitCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		v.ID, v.RequesterID, v.PharmacyName, v.PatientInitials,
		v.PatientAddress, v.PatientCity, v.PatientState, v.PatientZip, v.Latitude, v.Longitude,
		v.ScheduledDate, v.StartTime, v.DurationMinutes, v.InfusionType, v.Medication,
		v.RequiredCertifications, v.PayRate, v.Urgency, v.Notes, v.Status, v.AssignedNurseID,
		v.DocumentationNotes, v.Documents, v.PostedAt, v.CompletedAt, v.CreatedAt, v.UpdatedAt)
	return apperr.FromRepo(err)
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
}

func (r *visitRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1 FOR UPDATE`, id))
}

func (r *visitRepoPG) Update(ctx context.Context, v *Visit) error {
	v.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET pharmacy_name=$2, patient_initials=$3,
			patient_address=$4, patient_city=$5, patient_state=$6, patient_zip=$7,
			latitude=$8, longitude=$9, scheduled_date=$10, start_time=$11,
			duration_minutes=$12, infusion_type=$13, medication=$14,
			required_certifications=$15, pay_rate=$16, urgency=$17, notes=$18,
			status=$19, assigned_nurse_id=$20, documentation_notes=$21, documents=$22,
			posted_at=$23, completed_at=$24, updated_at=$25
		WHERE id = $1`,
		v.ID, v.PharmacyName, v.PatientInitials,
		v.PatientAddress, v.PatientCity, v.PatientState, v.PatientZip,
		v.Latitude, v.Longitude, v.ScheduledDate, v.StartTime,
		v.DurationMinutes, v.InfusionType, v.Medication,
		v.RequiredCertifications, v.PayRate, v.Urgency, v.Notes,
		v.Status, v.AssignedNurseID, v.DocumentationNotes, v.Documents,
		v.PostedAt, v.CompletedAt, v.UpdatedAt)
	if err != nil {
		return apperr.FromRepo(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *visitRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
	if err != nil {
		return apperr.FromRepo(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *visitRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Visit, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.RequesterID != nil {
		where += fmt.Sprintf(` AND requester_id = $%d`, idx)
		args = append(args, *f.RequesterID)
		idx++
	}
	if f.AssignedNurseID != nil {
		where += fmt.Sprintf(` AND assigned_nurse_id = $%d`, idx)
		args = append(args, *f.AssignedNurseID)
		idx++
	}
	if f.State != "" {
		where += fmt.Sprintf(` AND patient_state = $%d`, idx)
		args = append(args, f.State)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + visitCols + ` FROM visit` + where +
		fmt.Sprintf(` ORDER BY scheduled_date, start_time LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

// haversineSQL is DistanceMiles in SQL, formatted with the placeholders of
// the origin latitude and longitude. Rows without coordinates yield NULL.
const haversineSQL = `2 * 3958.8 * asin(least(1, sqrt(
	power(sin(radians(latitude - %[1]s) / 2), 2) +
	cos(radians(%[1]s)) * cos(radians(latitude)) * power(sin(radians(longitude - %[2]s) / 2), 2))))`

// jobOrder mirrors SortJobs; ties fall back to the date order.
var jobOrder = map[string]string{
	SortDistance: `distance_miles ASC NULLS LAST, `,
	SortPay:      `pay_rate DESC, `,
	SortDuration: `duration_minutes ASC, `,
	SortNewest:   `COALESCE(posted_at, created_at) DESC, `,
}

func (r *visitRepoPG) ListJobs(ctx context.Context, q JobQuery, limit, offset int) ([]Job, int, error) {
	args := []interface{}{StatusPosted}
	inner := `status = $1`
	if !q.ScheduledFrom.IsZero() {
		args = append(args, q.ScheduledFrom)
		inner += fmt.Sprintf(` AND scheduled_date >= $%d`, len(args))
	}
	dist := `NULL::double precision`
	if q.Origin != nil {
		args = append(args, q.Origin.Latitude, q.Origin.Longitude)
		dist = fmt.Sprintf(haversineSQL, fmt.Sprintf("$%d::double precision", len(args)-1), fmt.Sprintf("$%d::double precision", len(args)))
	}
	outer := `TRUE`
	if q.MaxDistanceMiles > 0 && q.Origin != nil {
		args = append(args, q.MaxDistanceMiles)
		outer = fmt.Sprintf(`distance_miles <= $%d`, len(args))
	}
	from := ` FROM (SELECT ` + visitCols + `, ` + dist + ` AS distance_miles FROM visit WHERE ` + inner + `) j WHERE ` + outer

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	query := `SELECT ` + visitCols + `, distance_miles` + from +
		` ORDER BY ` + jobOrder[q.SortBy] + `scheduled_date, start_time, id` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		var d *float64
		v, err := r.scanRow(rows, &d)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, Job{Visit: v, DistanceMiles: d})
	}
	return jobs, total, rows.Err()
}

// -- Application --

type applicationRepoPG struct{ pool *pgxpool.Pool }

func NewApplicationRepoPG(pool *pgxpool.Pool) ApplicationRepository {
	return &applicationRepoPG{pool: pool}
}

func (r *applicationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appCols = `id, visit_id, nurse_id, status, message, proposed_rate, created_at, updated_at`

func (r *applicationRepoPG) scanRow(row pgx.Row) (*Application, error) {
	var a Application
	if err := row.Scan(&a.ID, &a.VisitID, &a.NurseID, &a.Status, &a.Message, &a.ProposedRate, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, apperr.FromRepo(err)
	}
	return &a, nil
}

func (r *applicationRepoPG) Create(ctx context.Context, a *Application) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO application (`+appCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.VisitID, a.NurseID, a.Status, a.Message, a.ProposedRate, a.CreatedAt, a.UpdatedAt)
	return apperr.FromRepo(err)
}

func (r *applicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Application, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+appCols+` FROM application WHERE id = $1`, id))
}

func (r *applicationRepoPG) GetByVisitAndNurse(ctx context.Context, visitID, nurseID uuid.UUID) (*Application, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appCols+` FROM application WHERE visit_id = $1 AND nurse_id = $2`, visitID, nurseID))
}

func (r *applicationRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE application SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return apperr.FromRepo(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *applicationRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Application, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM application WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+appCols+` FROM application WHERE `+where+
			fmt.Sprintf(` ORDER BY created_at LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Application
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *applicationRepoPG) ListByVisit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]*Application, int, error) {
	return r.list(ctx, `visit_id = $1`, []interface{}{visitID}, limit, offset)
}

func (r *applicationRepoPG) ListByNurse(ctx context.Context, nurseID uuid.UUID, status string, limit, offset int) ([]*Application, int, error) {
	return r.list(ctx, `nurse_id = $1 AND ($2 = '' OR status = $2)`, []interface{}{nurseID, status}, limit, offset)
}

func (r *applicationRepoPG) RejectPending(ctx context.Context, visitID, keep uuid.UUID) ([]*Application, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE application SET status = $3, updated_at = $4
		WHERE visit_id = $1 AND id <> $2 AND status = $5
		RETURNING `+appCols,
		visitID, keep, ApplicationRejected, time.Now().UTC(), ApplicationPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Application
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
