package admin

import (
	"time"

	"github.com/google/uuid"
)

const (
	PermReviewOnboarding  = "review_onboarding"
	PermVerifyCredentials = "verify_credentials"
	PermManagePayments    = "manage_payments"
	PermViewAudit         = "view_audit"
	PermViewAnalytics     = "view_analytics"
	PermManageAccounts    = "manage_accounts"
)

var validPermissions = map[string]bool{
	PermReviewOnboarding: true, PermVerifyCredentials: true, PermManagePayments: true,
	PermViewAudit: true, PermViewAnalytics: true, PermManageAccounts: true,
}

// AdminProfile describes a platform administrator.
type AdminProfile struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OwnerID     uuid.UUID `db:"owner_id" json:"owner_id"`
	Name        string    `db:"name" json:"name"`
	Email       string    `db:"email" json:"email"`
	Department  string    `db:"department" json:"department"`
	Permissions []string  `db:"permissions" json:"permissions"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// HasPermission reports whether the profile grants perm.
func (a *AdminProfile) HasPermission(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
