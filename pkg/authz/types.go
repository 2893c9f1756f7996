package authz

import (
	"errors"
	"time"
)

// Role is the admin tier assigned to a principal. A principal holds at most
// one role at a time; superadmin subsumes clientAdmin which subsumes
// eventAdmin.
type Role string

const (
	RoleSuperAdmin  Role = "superadmin"
	RoleClientAdmin Role = "clientAdmin"
	RoleEventAdmin  Role = "eventAdmin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleClientAdmin, RoleEventAdmin:
		return true
	}
	return false
}

// Assignable reports whether r may be granted through the role-assignment
// endpoint. Superadmin is never assignable via the API.
func (r Role) Assignable() bool {
	return r == RoleClientAdmin || r == RoleEventAdmin
}

// PermissionRecord is the durable authorization grant for one principal.
//
// ClientIDs and EventIDs distinguish nil from empty: nil means "all"
// (only meaningful for superadmin, and for EventIDs also clientAdmin),
// while an empty or missing list means no access. The two must never be
// conflated.
type PermissionRecord struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ClientIDs *[]string `json:"clientIds"`
	EventIDs  *[]string `json:"eventIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// SynthesizeSuperAdmin builds the in-memory record used when a superadmin
// needs a PermissionRecord for display or predicate purposes. Superadmins
// are not required to have a stored record; nil ID lists mean full access.
func SynthesizeSuperAdmin(userID, email string) *PermissionRecord {
	return &PermissionRecord{
		UserID: userID,
		Email:  email,
		Role:   RoleSuperAdmin,
	}
}

// TokenClaims is the recognized subset of the identity token's custom
// claims. The token may carry arbitrary additional fields; they are ignored.
type TokenClaims struct {
	// Subject is the principal ID the token was issued for.
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`

	// SuperAdmin is the current superadmin claim; LegacyAdmin is the older
	// "admin" boolean it replaced. Either grants superadmin.
	SuperAdmin  bool `json:"superadmin,omitempty"`
	LegacyAdmin bool `json:"admin,omitempty"`

	// Role carries clientAdmin or eventAdmin when set. Claims are the fast
	// path and can go stale relative to the record store; the resolver
	// repairs that rather than trusting them forever.
	Role Role `json:"role,omitempty"`
}

// IsSuperAdmin reports whether the claims assert superadmin, honoring the
// legacy admin claim.
func (c TokenClaims) IsSuperAdmin() bool {
	return c.SuperAdmin || c.LegacyAdmin
}

// Resolution is the outcome of resolving a verified token against the
// permission record store.
type Resolution struct {
	// Role is empty when no authorization exists for the principal.
	Role Role `json:"role,omitempty"`
	// Permissions is nil for superadmins (no stored record required) and
	// in the degraded state where claims name a role but no record exists.
	Permissions *PermissionRecord `json:"permissions"`
}

// Error taxonomy shared by the resolver, guard, and API layer. Handlers map
// these onto HTTP status codes; everything else is a 500.
var (
	// ErrUnauthorized means no credential (or a malformed one) was presented.
	ErrUnauthorized = errors.New("authorization required")
	// ErrInvalidToken means a credential was presented but failed verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden means the caller is authenticated but lacks role or scope.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrNotFound means the target principal or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the request body failed validation.
	ErrValidation = errors.New("invalid request")
	// ErrStore means a backing-store read or write failed. Distinct from
	// ErrNotFound: an infrastructure outage must never read as "no
	// permissions".
	ErrStore = errors.New("store operation failed")
	// ErrProviderUnavailable means the identity provider's admin surface
	// could not be reached or initialized. Mapped to 503 so clients can
	// degrade instead of forcing logout.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)
