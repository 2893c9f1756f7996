package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stagepass/stagepass/pkg/audit"
	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/httputil"
	"github.com/stagepass/stagepass/pkg/middleware"
	"github.com/stagepass/stagepass/pkg/observability"
	"github.com/stagepass/stagepass/pkg/rules"
	"github.com/stagepass/stagepass/pkg/store"
)

// ParticipantHandlers implements event participant deactivation and
// reactivation. Deactivation also drops the participant from the per-event
// access allow-list so the mobile client stops admitting them; reactivation
// restores the entry.
type ParticipantHandlers struct {
	participants store.ParticipantStore
	permStore    store.PermissionStore
	recorder     audit.Recorder
	policy       *rules.Engine
	logger       *observability.Logger
}

// NewParticipantHandlers creates the participant management handlers.
func NewParticipantHandlers(participants store.ParticipantStore, permStore store.PermissionStore, recorder audit.Recorder, policy *rules.Engine, logger *observability.Logger) *ParticipantHandlers {
	return &ParticipantHandlers{
		participants: participants,
		permStore:    permStore,
		recorder:     recorder,
		policy:       policy,
		logger:       logger,
	}
}

// RegisterRoutes registers the participant routes on router, which is
// expected to carry the clientId, eventId, and email path variables.
func (h *ParticipantHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/deactivate", h.deactivate).Methods("POST")
	router.HandleFunc("/reactivate", h.reactivate).Methods("POST")
}

func (h *ParticipantHandlers) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setParticipantState(w, r, false)
}

func (h *ParticipantHandlers) reactivate(w http.ResponseWriter, r *http.Request) {
	h.setParticipantState(w, r, true)
}

func (h *ParticipantHandlers) setParticipantState(w http.ResponseWriter, r *http.Request, active bool) {
	claims, _ := middleware.GetClaims(r)
	ctx := r.Context()

	vars := httputil.GetPathVars(r)
	clientID, eventID, email := vars["clientId"], vars["eventId"], vars["email"]
	if clientID == "" || eventID == "" || email == "" {
		httputil.WriteBadRequest(w, "clientId, eventId and email are required")
		return
	}

	action := audit.ActionParticipantDeactivate
	if active {
		action = audit.ActionParticipantReactivate
	}

	caller, err := callerRecord(ctx, claims, h.permStore)
	if err != nil {
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}
	if !authz.CanWriteEventContent(caller, clientID, eventID) {
		h.audit(r, claims, action, email, clientID, eventID, audit.OutcomeDenied, "event out of caller scope")
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	// The allow-list lives in the shared store; its write policy is the
	// second authority on top of the scope check above.
	if !h.policy.Allows("whitelist", rules.OpWrite, policyRequest(claims)) {
		h.audit(r, claims, action, email, clientID, eventID, audit.OutcomeDenied, "store policy denies whitelist write")
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	if err := h.participants.SetActive(ctx, clientID, eventID, email, active); err != nil {
		h.audit(r, claims, action, email, clientID, eventID, audit.OutcomeFailure, "participant update failed")
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}

	if active {
		err = h.participants.AddAllowlistEntry(ctx, clientID, eventID, email)
	} else {
		err = h.participants.RemoveAllowlistEntry(ctx, clientID, eventID, email)
	}
	if err != nil {
		h.audit(r, claims, action, email, clientID, eventID, audit.OutcomeFailure, "allow-list update failed")
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}

	h.audit(r, claims, action, email, clientID, eventID, audit.OutcomeSuccess, "")
	httputil.WriteNoContent(w)
}

func (h *ParticipantHandlers) audit(r *http.Request, claims authz.TokenClaims, action audit.Action, target, clientID, eventID string, outcome audit.Outcome, detail string) {
	entry := &audit.Entry{
		ActorID:   claims.Subject,
		ActorRole: actorRole(claims),
		Action:    action,
		Target:    target,
		ClientID:  clientID,
		EventID:   eventID,
		Outcome:   outcome,
		Detail:    detail,
	}
	if err := h.recorder.Record(r.Context(), entry); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to record audit entry")
	}
}
