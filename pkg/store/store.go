// Package store persists permission records and per-event participant
// allow-lists. The Postgres implementation is the production backend; the
// memory implementation backs tests and local development; the Redis cache
// decorates either with a read-through record cache.
package store

import (
	"context"

	"github.com/stagepass/stagepass/pkg/authz"
)

// PermissionStore is the durable home of authorization grants, one record
// per principal. Missing records are reported with authz.ErrNotFound; any
// other error is an infrastructure failure.
type PermissionStore interface {
	authz.RecordStore

	// List returns records visible to the given client scope. A nil
	// clientIDs means no scope filter (superadmin view).
	List(ctx context.Context, clientIDs *[]string) ([]*authz.PermissionRecord, error)
}

// Participant is one row of an event's participant roster.
type Participant struct {
	ClientID string `json:"clientId"`
	EventID  string `json:"eventId"`
	Email    string `json:"email"`
	Active   bool   `json:"active"`
}

// ParticipantStore manages event participant state and the per-event access
// allow-list keyed by email. Deactivation removes the allow-list entry so
// the mobile client's own auth flow stops admitting the participant;
// reactivation restores it.
type ParticipantStore interface {
	SetActive(ctx context.Context, clientID, eventID, email string, active bool) error
	AddAllowlistEntry(ctx context.Context, clientID, eventID, email string) error
	RemoveAllowlistEntry(ctx context.Context, clientID, eventID, email string) error
	IsAllowlisted(ctx context.Context, clientID, eventID, email string) (bool, error)
}
