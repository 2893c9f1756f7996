package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/httputil"
	"github.com/stagepass/stagepass/pkg/identity"
	"github.com/stagepass/stagepass/pkg/middleware"
	"github.com/stagepass/stagepass/pkg/observability"
)

// ClaimsHandlers implements the claims-check endpoint the dashboard calls
// on every sign-in.
type ClaimsHandlers struct {
	resolver *authz.Resolver
	admin    identity.Admin
	logger   *observability.Logger
}

// NewClaimsHandlers creates the claims-check handlers.
func NewClaimsHandlers(resolver *authz.Resolver, admin identity.Admin, logger *observability.Logger) *ClaimsHandlers {
	return &ClaimsHandlers{resolver: resolver, admin: admin, logger: logger}
}

// RegisterRoutes registers the claims routes on router.
func (h *ClaimsHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/claims", h.checkClaims).Methods("GET")
}

// checkClaims handles GET /api/v1/claims.
//
// An unreachable identity provider admin surface answers 503, never 401:
// the client uses that distinction to degrade instead of forcing a logout.
func (h *ClaimsHandlers) checkClaims(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	if err := h.admin.Healthy(r.Context()); err != nil {
		h.logger.WithError(err).Warn("identity provider admin surface unavailable")
		httputil.WriteServiceUnavailable(w, "identity provider unavailable")
		return
	}

	resolution, err := h.resolver.Resolve(r.Context(), claims)
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrInvalidToken):
			httputil.WriteUnauthorized(w, "invalid token")
		case errors.Is(err, authz.ErrStore):
			httputil.WriteInternalError(w, authz.ErrStore)
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteSuccess(w, resolution)
}
