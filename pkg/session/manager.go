// Package session tracks the signed-in principal's resolved permissions on
// the client side of the dashboard. It owns the Loading / Resolved /
// SignedOut state machine and guarantees that a permission snapshot is never
// shown for the wrong principal, even when sign-ins race in-flight
// resolutions.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/observability"
)

// State is the lifecycle phase of the current principal's permissions.
type State int

const (
	// StateSignedOut means no principal is signed in.
	StateSignedOut State = iota
	// StateLoading means a principal is signed in but their permissions
	// have not yet been resolved.
	StateLoading
	// StateResolved means permissions for the current principal are known
	// (possibly known to be absent).
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateResolved:
		return "resolved"
	default:
		return "signedOut"
	}
}

// Snapshot is an immutable view of the state machine.
//
// PrincipalID tags which principal the snapshot belongs to, so consumers
// can structurally check "is this result still relevant" instead of relying
// on an in-flight boolean.
type Snapshot struct {
	State       State
	PrincipalID string
	Role        authz.Role
	Permissions *authz.PermissionRecord
}

// IsSuperAdmin reports whether the resolved principal is a superadmin.
func (s Snapshot) IsSuperAdmin() bool {
	return s.State == StateResolved && s.Role == authz.RoleSuperAdmin
}

// HasRole reports whether the resolved principal holds any role at all.
func (s Snapshot) HasRole() bool {
	return s.State == StateResolved && s.Role != ""
}

// ClaimsResolver resolves the caller's role and permissions over the
// network. Implemented by Client.
type ClaimsResolver interface {
	ResolveClaims(ctx context.Context, token string) (*authz.Resolution, error)
}

// Manager is the permission state machine. Safe for concurrent use; every
// mutation supersedes in-flight resolutions for older principals.
type Manager struct {
	resolver ClaimsResolver
	logger   *observability.Logger

	mu       sync.Mutex
	snapshot Snapshot
	cancel   context.CancelFunc
}

// NewManager creates a signed-out manager.
func NewManager(resolver ClaimsResolver, logger *observability.Logger) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{
		resolver: resolver,
		logger:   logger,
		snapshot: Snapshot{State: StateSignedOut},
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// SignOut clears all permission state immediately. Any in-flight resolution
// is cancelled; its result, should it still arrive, is discarded.
func (m *Manager) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.snapshot = Snapshot{State: StateSignedOut}
}

// SignIn switches the machine to a new principal and starts resolving their
// permissions in the background. A second SignIn for a different principal
// before the first resolution lands supersedes it; the stale result is never
// applied.
func (m *Manager) SignIn(principalID, token string, claims authz.TokenClaims) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.snapshot = Snapshot{State: StateLoading, PrincipalID: principalID}
	m.mu.Unlock()

	go m.resolve(ctx, principalID, token, claims)
}

func (m *Manager) resolve(ctx context.Context, principalID, token string, claims authz.TokenClaims) {
	resolution, err := m.resolver.ResolveClaims(ctx, token)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, authz.ErrProviderUnavailable) {
			// Degraded path: the admin surface is down but the token
			// itself is still trusted. Fall back to claims so the user
			// is not forced out.
			m.logger.WithField("principal_id", principalID).Warn("claims check unavailable, degrading to token claims")
			resolution = resolutionFromClaims(claims)
		} else {
			// Conservative default: an unresolvable principal has no
			// access, never a crash.
			m.logger.WithError(err).WithField("principal_id", principalID).Warn("claims resolution failed")
			resolution = &authz.Resolution{}
		}
	}

	m.apply(principalID, resolution)
}

// apply installs a resolution, unless the principal has changed since the
// request started.
func (m *Manager) apply(principalID string, resolution *authz.Resolution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot.PrincipalID != principalID || m.snapshot.State == StateSignedOut {
		return
	}

	permissions := resolution.Permissions
	if resolution.Role == authz.RoleSuperAdmin && permissions == nil {
		// Synthesize the full-access record here so downstream consumers
		// never need a superadmin special case.
		permissions = authz.SynthesizeSuperAdmin(principalID, "")
	}
	m.snapshot = Snapshot{
		State:       StateResolved,
		PrincipalID: principalID,
		Role:        resolution.Role,
		Permissions: permissions,
	}
}

func resolutionFromClaims(claims authz.TokenClaims) *authz.Resolution {
	if claims.IsSuperAdmin() {
		return &authz.Resolution{Role: authz.RoleSuperAdmin}
	}
	if claims.Role.Valid() {
		return &authz.Resolution{Role: claims.Role}
	}
	return &authz.Resolution{}
}
