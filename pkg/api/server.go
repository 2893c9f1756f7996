// Package api exposes the access-control HTTP surface: role assignment and
// removal, claims resolution, permission record listing, and event
// participant management. Every route sits behind the bearer-token guard;
// role gates and scope checks are applied per handler group.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stagepass/stagepass/pkg/audit"
	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/identity"
	"github.com/stagepass/stagepass/pkg/middleware"
	"github.com/stagepass/stagepass/pkg/observability"
	"github.com/stagepass/stagepass/pkg/rules"
	"github.com/stagepass/stagepass/pkg/store"
)

// Server represents our API server
type Server struct {
	permStore    store.PermissionStore
	participants store.ParticipantStore
	provider     identity.Provider
	resolver     *authz.Resolver
	recorder     audit.Recorder
	policy       *rules.Engine
	logger       *observability.Logger
	router       *mux.Router
}

// NewServer creates a new API server with all routes registered. The policy
// engine is consulted as a backstop in front of store access; passing nil
// runs on the shipped default policy.
func NewServer(permStore store.PermissionStore, participants store.ParticipantStore, provider identity.Provider, resolver *authz.Resolver, recorder audit.Recorder, policy *rules.Engine, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if recorder == nil {
		recorder = audit.NewMemoryRecorder()
	}
	if policy == nil {
		policy, _ = rules.NewEngine("", logger)
	}
	s := &Server{
		permStore:    permStore,
		participants: participants,
		provider:     provider,
		resolver:     resolver,
		recorder:     recorder,
		policy:       policy,
		logger:       logger,
		router:       mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	auth := middleware.NewAuthMiddleware(s.provider)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestID(s.logger), middleware.Metrics, auth.Handler)

	// Claims resolution is open to any authenticated principal; the
	// resolver itself decides what they are entitled to.
	claimsHandlers := NewClaimsHandlers(s.resolver, s.provider, s.logger)
	claimsHandlers.RegisterRoutes(api)

	// Role management requires at least a clientAdmin claim.
	roles := api.PathPrefix("/roles").Subrouter()
	roles.Use(middleware.RequireRoles(authz.RoleClientAdmin))
	roleHandlers := NewRoleHandlers(s.permStore, s.provider, s.recorder, s.policy, s.logger)
	roleHandlers.RegisterRoutes(roles)

	// Participant management additionally admits eventAdmins; the scope
	// check inside the handlers narrows them to their own events.
	participants := api.PathPrefix("/events/{clientId}/{eventId}/participants/{email}").Subrouter()
	participants.Use(middleware.RequireRoles(authz.RoleClientAdmin, authz.RoleEventAdmin))
	participantHandlers := NewParticipantHandlers(s.participants, s.permStore, s.recorder, s.policy, s.logger)
	participantHandlers.RegisterRoutes(participants)
}

// policyRequest shapes the caller's claims for a store policy check.
func policyRequest(claims authz.TokenClaims) rules.Request {
	return rules.Request{
		Authenticated: true,
		Claims:        claims,
		OwnerID:       claims.Subject,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// callerRecord loads the permission record backing the caller's scope
// checks. Superadmins get a synthesized full-access record; a caller with
// role claims but no stored record gets nil, which every predicate treats
// as no access.
func callerRecord(ctx context.Context, claims authz.TokenClaims, permStore store.PermissionStore) (*authz.PermissionRecord, error) {
	if claims.IsSuperAdmin() {
		return authz.SynthesizeSuperAdmin(claims.Subject, claims.Email), nil
	}
	record, err := permStore.GetByUserID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
