package credential

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeRNLicense          = "rn_license"
	TypeLPNLicense         = "lpn_license"
	TypeIVCertification    = "iv_certification"
	TypeBLS                = "bls"
	TypeACLS               = "acls"
	TypeTBTest             = "tb_test"
	TypeLiabilityInsurance = "liability_insurance"
	TypeOther              = "other"
)

// typeLabels holds the display name of each credential type.
var typeLabels = map[string]string{
	TypeRNLicense:          "RN license",
	TypeLPNLicense:         "LPN license",
	TypeIVCertification:    "IV certification",
	TypeBLS:                "BLS certification",
	TypeACLS:               "ACLS certification",
	TypeTBTest:             "TB test",
	TypeLiabilityInsurance: "liability insurance",
	TypeOther:              "credential",
}

const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusVerified: true, StatusRejected: true, StatusExpired: true,
}

// Credential is a license or certificate a nurse uploaded for review.
// NurseID is the nurse's account id.
type Credential struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	NurseID            uuid.UUID  `db:"nurse_id" json:"nurse_id"`
	Type               string     `db:"type" json:"type"`
	Number             string     `db:"number" json:"number"`
	IssuingState       string     `db:"issuing_state" json:"issuing_state"`
	IssuedDate         *time.Time `db:"issued_date" json:"issued_date,omitempty"`
	ExpirationDate     *time.Time `db:"expiration_date" json:"expiration_date,omitempty"`
	DocumentKey        string     `db:"document_key" json:"document_key"`
	DocumentVersion    string     `db:"document_version" json:"document_version"`
	FileName           string     `db:"file_name" json:"file_name"`
	VerificationStatus string     `db:"verification_status" json:"verification_status"`
	VerifiedBy         *uuid.UUID `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt         *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	ReviewerNotes      *string    `db:"reviewer_notes" json:"reviewer_notes,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Label returns the display name of the credential type.
func (c *Credential) Label() string {
	if l, ok := typeLabels[c.Type]; ok {
		return l
	}
	return "credential"
}

// ExpiredAt reports whether the credential is past its expiration date.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return c.ExpirationDate != nil && c.ExpirationDate.Before(now)
}

// UploadRequest carries the metadata sent with a credential document.
type UploadRequest struct {
	NurseID        uuid.UUID
	Type           string
	Number         string
	IssuingState   string
	IssuedDate     *time.Time
	ExpirationDate *time.Time
}

type ReviewRequest struct {
	Notes string `json:"notes"`
}

// SweepResult reports what an expiry sweep changed.
type SweepResult struct {
	Expired int `json:"expired"`
}
