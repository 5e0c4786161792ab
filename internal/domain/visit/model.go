package visit

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusDraft     = "draft"
	StatusPosted    = "posted"
	StatusAssigned  = "assigned"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusDraft: true, StatusPosted: true, StatusAssigned: true,
	StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true,
}

// ValidStatus reports whether s is a visit lifecycle status.
func ValidStatus(s string) bool { return validStatuses[s] }

const (
	UrgencyRoutine = "routine"
	UrgencyUrgent  = "urgent"
	UrgencyStat    = "stat"
)

var validUrgencies = map[string]bool{UrgencyRoutine: true, UrgencyUrgent: true, UrgencyStat: true}

const (
	ApplicationPending   = "pending"
	ApplicationAccepted  = "accepted"
	ApplicationRejected  = "rejected"
	ApplicationWithdrawn = "withdrawn"
)

// Visit is an IV-infusion job posted by a pharmacy. RequesterID is the
// pharmacy's account id and AssignedNurseID the nurse's account id.
type Visit struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	RequesterID            uuid.UUID  `db:"requester_id" json:"requester_id"`
	PharmacyName           string     `db:"pharmacy_name" json:"pharmacy_name"`
	PatientInitials        string     `db:"patient_initials" json:"patient_initials"`
	PatientAddress         string     `db:"patient_address" json:"patient_address"`
	PatientCity            string     `db:"patient_city" json:"patient_city"`
	PatientState           string     `db:"patient_state" json:"patient_state"`
	PatientZip             string     `db:"patient_zip" json:"patient_zip"`
	Latitude               *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude              *float64   `db:"longitude" json:"longitude,omitempty"`
	ScheduledDate          time.Time  `db:"scheduled_date" json:"scheduled_date"`
	StartTime              string     `db:"start_time" json:"start_time"`
	DurationMinutes        int        `db:"duration_minutes" json:"duration_minutes"`
	InfusionType           string     `db:"infusion_type" json:"infusion_type"`
	Medication             string     `db:"medication" json:"medication"`
	RequiredCertifications []string   `db:"required_certifications" json:"required_certifications"`
	PayRate                float64    `db:"pay_rate" json:"pay_rate"`
	Urgency                string     `db:"urgency" json:"urgency"`
	Notes                  string     `db:"notes" json:"notes"`
	Status                 string     `db:"status" json:"status"`
	AssignedNurseID        *uuid.UUID `db:"assigned_nurse_id" json:"assigned_nurse_id,omitempty"`
	DocumentationNotes     string     `db:"documentation_notes" json:"documentation_notes"`
	Documents              []string   `db:"documents" json:"documents"`
	PostedAt               *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	CompletedAt            *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// HasLocation reports whether the visit carries coordinates.
func (v *Visit) HasLocation() bool {
	return v.Latitude != nil && v.Longitude != nil
}

// IsAssignedTo reports whether nurseID is the nurse booked for the visit.
func (v *Visit) IsAssignedTo(nurseID uuid.UUID) bool {
	return v.AssignedNurseID != nil && *v.AssignedNurseID == nurseID
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status          string
	RequesterID     *uuid.UUID
	AssignedNurseID *uuid.UUID
	State           string
}

// Application is a nurse's request to take a posted visit.
type Application struct {
	ID           uuid.UUID `db:"id" json:"id"`
	VisitID      uuid.UUID `db:"visit_id" json:"visit_id"`
	NurseID      uuid.UUID `db:"nurse_id" json:"nurse_id"`
	Status       string    `db:"status" json:"status"`
	Message      string    `db:"message" json:"message"`
	ProposedRate *float64  `db:"proposed_rate" json:"proposed_rate,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type ApplyRequest struct {
	Message      string   `json:"message"`
	ProposedRate *float64 `json:"proposed_rate"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type DocumentationRequest struct {
	Notes string `json:"notes"`
}

// Job is a posted visit as shown on the job board.
type Job struct {
	*Visit
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
}
