// Package middleware implements the guard applied to every privileged API
// endpoint: bearer token extraction, verification against the identity
// provider, and coarse role gates. Fine-grained scope checks live with the
// handlers, which consult the predicate library against the caller's
// permission record.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/stagepass/stagepass/pkg/authz"
	"github.com/stagepass/stagepass/pkg/httputil"
	"github.com/stagepass/stagepass/pkg/identity"
	"github.com/stagepass/stagepass/pkg/observability"
)

type contextKey string

// authKey carries the verified token claims through the request context.
const authKey contextKey = "auth_claims"

// AuthMiddleware verifies bearer tokens on every request it wraps.
type AuthMiddleware struct {
	verifier identity.Verifier

	// cache holds recently verified tokens so a burst of dashboard
	// requests doesn't re-verify the same token. Entries expire well
	// before token lifetime; revocation latency is bounded by the TTL.
	cache *expirable.LRU[string, authz.TokenClaims]
}

// NewAuthMiddleware creates the verification middleware with a small
// expiring token cache.
func NewAuthMiddleware(verifier identity.Verifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		cache:    expirable.NewLRU[string, authz.TokenClaims](1024, nil, time.Minute),
	}
}

// Handler wraps next with bearer extraction and token verification.
// Missing or malformed credentials answer 401; verification failures
// answer 401 as well but are counted separately.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			observability.GuardRejectionsTotal.WithLabelValues("unauthorized").Inc()
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			observability.GuardRejectionsTotal.WithLabelValues("unauthorized").Inc()
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}
		rawToken := parts[1]

		claims, ok := m.cache.Get(rawToken)
		if !ok {
			var err error
			claims, err = m.verifier.VerifyToken(r.Context(), rawToken)
			if err != nil {
				observability.GuardRejectionsTotal.WithLabelValues("invalid_token").Inc()
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			m.cache.Add(rawToken, claims)
		}

		ctx := context.WithValue(r.Context(), authKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts the verified claims from the request, with ok=false
// when the request never passed the auth middleware.
func GetClaims(r *http.Request) (authz.TokenClaims, bool) {
	claims, ok := r.Context().Value(authKey).(authz.TokenClaims)
	return claims, ok
}

// RequireRoles gates a handler on the caller's claimed role. Superadmins
// always pass. Other callers pass when their role claim is in roles.
//
// This is deliberately a claims check, not a record check: privileged
// endpoints trust the verified token for the coarse gate and consult the
// record store only for scope. A caller whose claims are stale is denied
// here until their next resolution heals the claims.
func RequireRoles(roles ...authz.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r)
			if !ok {
				observability.GuardRejectionsTotal.WithLabelValues("unauthorized").Inc()
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if claims.IsSuperAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			observability.GuardRejectionsTotal.WithLabelValues("forbidden").Inc()
			httputil.WriteForbidden(w, "insufficient permissions")
		})
	}
}
