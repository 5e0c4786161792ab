package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

const (
	RoleNurse    = "nurse"
	RolePharmacy = "pharmacy"
	RoleAdmin    = "admin"
)

// ValidRoles lists the roles an account can hold.
var ValidRoles = map[string]bool{
	RoleNurse:    true,
	RolePharmacy: true,
	RoleAdmin:    true,
}

// DevUserID is the fixed identity used by DevAuthMiddleware.
var DevUserID = uuid.MustParse("00000000-0000-4000-8000-000000000001")

// Identity is the authenticated caller as seen by services.
type Identity struct {
	UserID uuid.UUID
	Roles  []string
}

// HasRole reports whether the identity holds role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity is a platform administrator.
func (i Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// Owns reports whether the identity may act on a record owned by owner.
// Administrators own everything.
func (i Identity) Owns(owner uuid.UUID) bool {
	return i.IsAdmin() || (i.UserID != uuid.Nil && i.UserID == owner)
}

// WithIdentity stores the caller on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID.String())
	return context.WithValue(ctx, UserRolesKey, id.Roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// IdentityFromContext rebuilds the caller from ctx. A missing or malformed
// user id yields uuid.Nil.
func IdentityFromContext(ctx context.Context) Identity {
	uid, _ := uuid.Parse(UserIDFromContext(ctx))
	return Identity{UserID: uid, Roles: RolesFromContext(ctx)}
}
