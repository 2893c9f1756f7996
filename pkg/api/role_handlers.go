package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stagepass/stagepass/pkg/audit"
	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/httputil"
	"github.com/stagepass/stagepass/pkg/identity"
	"github.com/stagepass/stagepass/pkg/middleware"
	"github.com/stagepass/stagepass/pkg/observability"
	"github.com/stagepass/stagepass/pkg/rules"
	"github.com/stagepass/stagepass/pkg/store"
)

// RoleHandlers implements role assignment, removal, and listing.
type RoleHandlers struct {
	permStore store.PermissionStore
	provider  identity.Provider
	recorder  audit.Recorder
	policy    *rules.Engine
	logger    *observability.Logger
}

// NewRoleHandlers creates the role management handlers.
func NewRoleHandlers(permStore store.PermissionStore, provider identity.Provider, recorder audit.Recorder, policy *rules.Engine, logger *observability.Logger) *RoleHandlers {
	return &RoleHandlers{
		permStore: permStore,
		provider:  provider,
		recorder:  recorder,
		policy:    policy,
		logger:    logger,
	}
}

// RegisterRoutes registers the role routes on router. The router is expected
// to already carry the auth and role-gate middleware.
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", h.assignRole).Methods("POST")
	router.HandleFunc("", h.removeRole).Methods("DELETE")
	router.HandleFunc("", h.listRoles).Methods("GET")
}

// assignRole handles POST /api/v1/roles.
//
// Claims are written to the identity provider before the record upsert. If
// the record write then fails, the claims resolver repairs the mismatch on
// the target's next login.
func (h *RoleHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetClaims(r)
	ctx := r.Context()

	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}
	role := authz.Role(req.Role)
	if !role.Assignable() {
		httputil.WriteBadRequest(w, "role must be clientAdmin or eventAdmin")
		return
	}
	if len(req.ClientIDs) == 0 {
		httputil.WriteBadRequest(w, "clientIds must be non-empty")
		return
	}

	caller, err := callerRecord(ctx, claims, h.permStore)
	if err != nil {
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}

	// ClientAdmins may only ever grant eventAdmin.
	if role == authz.RoleClientAdmin && !authz.CanManageAdmins(callerRole(claims, caller)) {
		h.audit(r, claims, audit.ActionRoleAssign, req.Email, audit.OutcomeDenied, "clientAdmin grant requires superadmin")
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}
	if role == authz.RoleEventAdmin && !authz.CanManageEventAdmins(callerRole(claims, caller)) {
		h.audit(r, claims, audit.ActionRoleAssign, req.Email, audit.OutcomeDenied, "eventAdmin grant requires clientAdmin")
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	// Every granted client must lie inside the caller's own scope.
	for _, clientID := range req.ClientIDs {
		if !authz.CanAccessClient(caller, clientID) {
			h.audit(r, claims, audit.ActionRoleAssign, req.Email, audit.OutcomeDenied, "client out of caller scope")
			httputil.WriteForbidden(w, "insufficient permissions")
			return
		}
	}

	// Look up the target, pre-provisioning a principal who has never
	// signed in.
	user, err := h.provider.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			user, err = h.provider.CreateUser(ctx, req.Email)
		}
		if err != nil {
			h.audit(r, claims, audit.ActionRoleAssign, req.Email, audit.OutcomeFailure, err.Error())
			writeProviderError(w, err)
			return
		}
	}

	if err := h.provider.SetRoleClaims(ctx, user.ID, role); err != nil {
		h.audit(r, claims, audit.ActionRoleAssign, req.Email, audit.OutcomeFailure, err.Error())
		writeProviderError(w, err)
		return
	}

	now := time.Now().UTC()
	record := &authz.PermissionRecord{
		UserID:    user.ID,
		Email:     req.Email,
		Role:      role,
		ClientIDs: &req.ClientIDs,
		EventIDs:  req.EventIDs,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: claims.Subject,
		UpdatedBy: claims.Subject,
	}
	if err := h.permStore.Upsert(ctx, record); err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("record upsert failed after claims write")
		h.audit(r, claims, audit.ActionRoleAssign, req.Email, audit.OutcomeFailure, "record write failed")
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}

	h.audit(r, claims, audit.ActionRoleAssign, req.Email, audit.OutcomeSuccess, string(role))
	httputil.WriteCreated(w, AssignRoleResponse{UserID: user.ID})
}

// removeRole handles DELETE /api/v1/roles.
func (h *RoleHandlers) removeRole(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetClaims(r)
	ctx := r.Context()

	var req RemoveRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "userId is required")
		return
	}

	target, err := h.permStore.GetByUserID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			httputil.WriteNotFoundError(w, "no permission record for principal")
			return
		}
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}

	// Superadmin records are never removable through this path.
	if target.Role == authz.RoleSuperAdmin {
		h.audit(r, claims, audit.ActionRoleRemove, req.UserID, audit.OutcomeDenied, "superadmin records are not removable")
		httputil.WriteForbidden(w, "superadmin records cannot be removed")
		return
	}

	caller, err := callerRecord(ctx, claims, h.permStore)
	if err != nil {
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}

	if !claims.IsSuperAdmin() {
		// ClientAdmins may only remove eventAdmins whose entire client
		// scope lies within their own.
		if target.Role != authz.RoleEventAdmin {
			h.audit(r, claims, audit.ActionRoleRemove, req.UserID, audit.OutcomeDenied, "target role above caller authority")
			httputil.WriteForbidden(w, "insufficient permissions")
			return
		}
		if !authz.ScopeSubsetOf(caller, target) {
			h.audit(r, claims, audit.ActionRoleRemove, req.UserID, audit.OutcomeDenied, "target scope exceeds caller scope")
			httputil.WriteForbidden(w, "insufficient permissions")
			return
		}
	}

	// Clear claims first, then the record. A failure in between leaves a
	// record with no claims, which resolves correctly and is re-deletable.
	if err := h.provider.ClearClaims(ctx, req.UserID); err != nil {
		h.audit(r, claims, audit.ActionRoleRemove, req.UserID, audit.OutcomeFailure, err.Error())
		writeProviderError(w, err)
		return
	}
	if err := h.provider.RevokeRefreshTokens(ctx, req.UserID); err != nil {
		h.logger.WithError(err).WithField("user_id", req.UserID).Warn("failed to revoke refresh tokens")
	}
	if err := h.permStore.DeleteByUserID(ctx, req.UserID); err != nil && !errors.Is(err, authz.ErrNotFound) {
		h.audit(r, claims, audit.ActionRoleRemove, req.UserID, audit.OutcomeFailure, "record delete failed")
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}

	h.audit(r, claims, audit.ActionRoleRemove, req.UserID, audit.OutcomeSuccess, string(target.Role))
	httputil.WriteNoContent(w)
}

// listRoles handles GET /api/v1/roles, returning the records visible inside
// the caller's client scope.
func (h *RoleHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetClaims(r)
	ctx := r.Context()

	// The store policy is the second authority on record reads; a policy
	// that tightens permission access must hold here too.
	if !h.policy.Allows("permissions", rules.OpRead, policyRequest(claims)) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	caller, err := callerRecord(ctx, claims, h.permStore)
	if err != nil {
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}

	scope := authz.AccessibleClientIDs(caller)
	records, err := h.permStore.List(ctx, scope)
	if err != nil {
		httputil.WriteInternalError(w, authz.ErrStore)
		return
	}
	if records == nil {
		records = []*authz.PermissionRecord{}
	}
	httputil.WriteSuccess(w, records)
}

func (h *RoleHandlers) audit(r *http.Request, claims authz.TokenClaims, action audit.Action, target string, outcome audit.Outcome, detail string) {
	entry := &audit.Entry{
		ActorID:   claims.Subject,
		ActorRole: actorRole(claims),
		Action:    action,
		Target:    target,
		Outcome:   outcome,
		Detail:    detail,
	}
	if err := h.recorder.Record(r.Context(), entry); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to record audit entry")
	}
}

// callerRole picks the effective role for coarse manage checks: superadmin
// from claims, otherwise the stored record's role.
func callerRole(claims authz.TokenClaims, caller *authz.PermissionRecord) authz.Role {
	if claims.IsSuperAdmin() {
		return authz.RoleSuperAdmin
	}
	if caller != nil {
		return caller.Role
	}
	return claims.Role
}

func actorRole(claims authz.TokenClaims) string {
	if claims.IsSuperAdmin() {
		return string(authz.RoleSuperAdmin)
	}
	return string(claims.Role)
}

func writeProviderError(w http.ResponseWriter, err error) {
	if errors.Is(err, authz.ErrProviderUnavailable) {
		httputil.WriteServiceUnavailable(w, "identity provider unavailable")
		return
	}
	httputil.WriteInternalError(w, err)
}
