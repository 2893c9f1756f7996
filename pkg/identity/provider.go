// Package identity abstracts the external identity provider: token
// verification on the read side, and the admin surface (user lookup,
// provisioning, custom claims, token revocation) on the write side.
//
// The provider is treated as a given external capability. Tokens are signed
// ID tokens carrying a small set of custom claims, refreshable on demand
// and revocable by the issuer; claims writes through the admin surface take
// effect on the next token refresh.
package identity

import (
	"context"

	"github.com/stagepass/stagepass/pkg/authz"
)

// UserInfo describes a principal known to the identity provider.
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Verifier checks a raw bearer token and extracts the recognized claims.
// Verification failure is reported as authz.ErrInvalidToken.
type Verifier interface {
	VerifyToken(ctx context.Context, rawToken string) (authz.TokenClaims, error)
}

// Admin is the provider's management surface. Lookup of an unknown email
// returns authz.ErrNotFound; an unreachable or uninitialized admin surface
// returns authz.ErrProviderUnavailable so callers can answer 503 instead of
// 401.
type Admin interface {
	GetUserByEmail(ctx context.Context, email string) (*UserInfo, error)

	// CreateUser pre-provisions a principal who has not signed in yet, so
	// a role can be granted ahead of their first login.
	CreateUser(ctx context.Context, email string) (*UserInfo, error)

	// SetRoleClaims replaces the principal's custom claims with the given
	// role. Superadmin sets the superadmin boolean; clientAdmin and
	// eventAdmin set the role string.
	SetRoleClaims(ctx context.Context, userID string, role authz.Role) error

	// ClearClaims removes all custom claims from the principal.
	ClearClaims(ctx context.Context, userID string) error

	// RevokeRefreshTokens forces the principal's outstanding sessions to
	// re-authenticate, picking up claim changes immediately.
	RevokeRefreshTokens(ctx context.Context, userID string) error

	// Healthy probes the admin surface.
	Healthy(ctx context.Context) error
}

// Provider bundles both halves of the identity integration.
type Provider interface {
	Verifier
	Admin
}

type provider struct {
	Verifier
	Admin
}

// NewProvider composes a Provider from separate verification and admin
// implementations, typically an OIDCVerifier and an AdminClient.
func NewProvider(verifier Verifier, admin Admin) Provider {
	return &provider{Verifier: verifier, Admin: admin}
}
