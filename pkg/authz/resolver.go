package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stagepass/stagepass/pkg/observability"
)

// RecordStore is the permission-record persistence the resolver reads and
// repairs. Implementations report a missing record with ErrNotFound; any
// other error is treated as an infrastructure failure and aborts resolution.
type RecordStore interface {
	GetByUserID(ctx context.Context, userID string) (*PermissionRecord, error)
	GetByEmail(ctx context.Context, email string) (*PermissionRecord, error)
	Upsert(ctx context.Context, record *PermissionRecord) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// ClaimsWriter writes role claims back to the identity provider so future
// tokens carry them. Used by the resolver's self-healing path.
type ClaimsWriter interface {
	SetRoleClaims(ctx context.Context, userID string, role Role) error
}

// Resolver determines a verified caller's role and scope. Token claims are
// the fast path; the permission record store is the authority. When the two
// disagree (migrations, manual store edits, provider re-links) the resolver
// repairs the claims, and if necessary migrates the record to the
// principal's canonical ID, rather than trusting stale claims forever.
type Resolver struct {
	store  RecordStore
	claims ClaimsWriter
	logger *observability.Logger

	// group collapses concurrent resolutions for the same principal so two
	// simultaneous logins cannot race the migration path against itself.
	group singleflight.Group
}

// NewResolver creates a resolver over the given record store and claims
// writer.
func NewResolver(store RecordStore, claims ClaimsWriter, logger *observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Resolver{store: store, claims: claims, logger: logger}
}

// Resolve maps verified token claims to a role and permission record.
//
// Resolution order, first match wins:
//  1. superadmin claim (current or legacy): superadmin, no record lookup.
//  2. role claim: fetch record by principal ID; a missing record yields the
//     degraded {role, nil} result, not an error.
//  3. no usable claims: fetch record by principal ID and heal claims from
//     it; if absent, fall back to lookup by email and migrate that record
//     to the canonical principal ID.
//
// Resolve is idempotent: a second call with unchanged backing state takes
// the fast path and performs no writes.
func (r *Resolver) Resolve(ctx context.Context, tc TokenClaims) (*Resolution, error) {
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	v, err, _ := r.group.Do(tc.Subject, func() (interface{}, error) {
		return r.resolve(ctx, tc)
	})
	if err != nil {
		observability.ResolutionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	return v.(*Resolution), nil
}

func (r *Resolver) resolve(ctx context.Context, tc TokenClaims) (*Resolution, error) {
	// Fast path: superadmin needs no stored record.
	if tc.IsSuperAdmin() {
		observability.ResolutionsTotal.WithLabelValues("claims_superadmin").Inc()
		return &Resolution{Role: RoleSuperAdmin, Permissions: nil}, nil
	}

	log := r.logger.WithField("user_id", tc.Subject)

	// Claims name a role: the record supplies scope. A missing record is a
	// degraded-but-defined state the caller must tolerate.
	if tc.Role == RoleClientAdmin || tc.Role == RoleEventAdmin {
		record, err := r.store.GetByUserID(ctx, tc.Subject)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: reading record for %s: %v", ErrStore, tc.Subject, err)
		}
		if record == nil {
			log.WithField("role", string(tc.Role)).Warn("role claim present but no permission record")
		}
		observability.ResolutionsTotal.WithLabelValues("claims_role").Inc()
		return &Resolution{Role: tc.Role, Permissions: record}, nil
	}

	// No usable claims: the record store is the only authority left.
	record, err := r.store.GetByUserID(ctx, tc.Subject)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: reading record for %s: %v", ErrStore, tc.Subject, err)
	}
	if record != nil {
		r.healClaims(ctx, tc.Subject, record.Role)
		observability.ResolutionsTotal.WithLabelValues("record").Inc()
		return &Resolution{Role: record.Role, Permissions: record}, nil
	}

	// Migration fallback: the record may live under a legacy principal ID
	// from before a provider re-link. Email is the only stable key then.
	if tc.Email == "" {
		observability.ResolutionsTotal.WithLabelValues("none").Inc()
		return &Resolution{}, nil
	}
	legacy, err := r.store.GetByEmail(ctx, tc.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: reading record by email: %v", ErrStore, err)
	}
	if legacy == nil {
		observability.ResolutionsTotal.WithLabelValues("none").Inc()
		return &Resolution{}, nil
	}

	migrated, err := r.migrateRecord(ctx, legacy, tc.Subject)
	if err != nil {
		return nil, err
	}
	r.healClaims(ctx, tc.Subject, migrated.Role)
	observability.ResolutionsTotal.WithLabelValues("migrated").Inc()
	return &Resolution{Role: migrated.Role, Permissions: migrated}, nil
}

// migrateRecord re-keys a record found by email onto the principal's
// canonical ID. The legacy key, when different, is deleted afterwards; a
// concurrent duplicate migration degrades to a no-op upsert thanks to the
// store's last-write-wins semantics.
func (r *Resolver) migrateRecord(ctx context.Context, legacy *PermissionRecord, userID string) (*PermissionRecord, error) {
	oldID := legacy.UserID

	migrated := *legacy
	migrated.UserID = userID
	migrated.UpdatedAt = time.Now().UTC()
	if err := r.store.Upsert(ctx, &migrated); err != nil {
		return nil, fmt.Errorf("%w: migrating record to %s: %v", ErrStore, userID, err)
	}
	if oldID != "" && oldID != userID {
		if err := r.store.DeleteByUserID(ctx, oldID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: deleting legacy record %s: %v", ErrStore, oldID, err)
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"legacy_id": oldID,
		"role":      string(migrated.Role),
	}).Info("migrated permission record to current principal ID")
	observability.RecordMigrationsTotal.Inc()
	return &migrated, nil
}

// healClaims writes the authoritative role back to the identity provider.
// Failure here is non-fatal: the caller still gets the record's role for
// this request, and the next login retries the heal.
func (r *Resolver) healClaims(ctx context.Context, userID string, role Role) {
	if r.claims == nil {
		return
	}
	if err := r.claims.SetRoleClaims(ctx, userID, role); err != nil {
		observability.ClaimHealsTotal.WithLabelValues("failure").Inc()
		r.logger.WithError(err).WithField("user_id", userID).Warn("failed to heal token claims")
		return
	}
	observability.ClaimHealsTotal.WithLabelValues("success").Inc()
}
