// Package audit records privileged access-control operations: who did what
// to whom, and whether it succeeded. Entries back the dashboard's admin
// activity view and compliance exports.
package audit

import "time"

// Action categorizes an audited operation.
type Action string

const (
	ActionRoleAssign            Action = "role.assign"
	ActionRoleRemove            Action = "role.remove"
	ActionParticipantDeactivate Action = "participant.deactivate"
	ActionParticipantReactivate Action = "participant.reactivate"
)

// Outcome is the result of an audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailure Outcome = "failure"
)

// Entry is a single audit record.
type Entry struct {
	ID        int64     `json:"id,omitempty"`
	ActorID   string    `json:"actorId"`
	ActorRole string    `json:"actorRole,omitempty"`
	Action    Action    `json:"action"`
	Target    string    `json:"target,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	EventID   string    `json:"eventId,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
