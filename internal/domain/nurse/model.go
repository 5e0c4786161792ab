package nurse

import (
	"time"

	"github.com/google/uuid"
)

const (
	OnboardingNotStarted = "not_started"
	OnboardingInProgress = "in_progress"
	OnboardingSubmitted  = "submitted"
	OnboardingApproved   = "approved"
	OnboardingRejected   = "rejected"
)

var validOnboardingStatuses = map[string]bool{
	OnboardingNotStarted: true, OnboardingInProgress: true, OnboardingSubmitted: true,
	OnboardingApproved: true, OnboardingRejected: true,
}

// OnboardingSteps names the wizard steps in order. OnboardingStep on a
// profile is the number of completed steps.
var OnboardingSteps = []string{
	"personal_info",
	"license",
	"specialties",
	"service_area",
	"credentials",
	"review",
}

// NurseProfile is a contract nurse's marketplace profile. OwnerID is the
// nurse's account id, which is also the nurse id used on visits,
// applications, credentials and payments.
type NurseProfile struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	OwnerID            uuid.UUID `db:"owner_id" json:"owner_id"`
	FirstName          string    `db:"first_name" json:"first_name"`
	LastName           string    `db:"last_name" json:"last_name"`
	Email              string    `db:"email" json:"email"`
	Phone              string    `db:"phone" json:"phone"`
	LicenseNumber      string    `db:"license_number" json:"license_number"`
	LicenseState       string    `db:"license_state" json:"license_state"`
	Specialties        []string  `db:"specialties" json:"specialties"`
	Certifications     []string  `db:"certifications" json:"certifications"`
	YearsExperience    int       `db:"years_experience" json:"years_experience"`
	HourlyRate         float64   `db:"hourly_rate" json:"hourly_rate"`
	ServiceRadiusMiles int       `db:"service_radius_miles" json:"service_radius_miles"`
	Address            string    `db:"address" json:"address"`
	City               string    `db:"city" json:"city"`
	State              string    `db:"state" json:"state"`
	Zip                string    `db:"zip" json:"zip"`
	Latitude           *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude          *float64  `db:"longitude" json:"longitude,omitempty"`
	Bio                string    `db:"bio" json:"bio"`
	OnboardingStep     int       `db:"onboarding_step" json:"onboarding_step"`
	OnboardingStatus   string    `db:"onboarding_status" json:"onboarding_status"`
	ReviewNotes        *string   `db:"review_notes" json:"review_notes,omitempty"`
	IsAvailable        bool      `db:"is_available" json:"is_available"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns "First Last".
func (n *NurseProfile) FullName() string {
	if n.LastName == "" {
		return n.FirstName
	}
	return n.FirstName + " " + n.LastName
}

// HasLocation reports whether the profile carries coordinates.
func (n *NurseProfile) HasLocation() bool {
	return n.Latitude != nil && n.Longitude != nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	State            string
	OnboardingStatus string
	Available        *bool
	Specialty        string
}

// OnboardingStepRequest saves one wizard step.
type OnboardingStepRequest struct {
	Step    int          `json:"step"`
	Profile NurseProfile `json:"profile"`
}

// ReviewRequest is an administrator's onboarding decision.
type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}
