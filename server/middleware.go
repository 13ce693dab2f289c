package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/postloop/postloop/tenants"
	"github.com/postloop/postloop/token"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores the verified access token claims
	ContextKeyClaims ContextKey = "claims"
	// ContextKeyTenant stores the resolved tenant context
	ContextKeyTenant ContextKey = "tenant"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware is the chain for endpoints reachable without an access token.
func (s *Server) APIMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.RecoverMiddleware,
		s.LoggingMiddleware,
	}
}

// AuthenticatedMiddleware is the chain for endpoints that require a verified
// bearer token and a pinned tenant.
func (s *Server) AuthenticatedMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.RecoverMiddleware,
		s.LoggingMiddleware,
		s.RequireAuth,
	}
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).Msg("request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeErrorCode(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next(w, r)
	}
}

// RequireAuth verifies the bearer access token, resolves the tenant (the
// token's tenant claim wins over the Host subdomain) and pins both into the
// request context. Requests that resolve to the public context are rejected:
// nothing behind this middleware is reachable without a tenant.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		if bearer == "" {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := s.auth.Verify(bearer)
		if err != nil {
			writeError(w, err)
			return
		}

		tc, err := s.resolver.Resolve(r.Context(), bearer, r.Host)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := tc.Require(); err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
		ctx = context.WithValue(ctx, ContextKeyTenant, tc)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// requestClaims pulls the verified claims placed by RequireAuth.
func requestClaims(r *http.Request) (*token.Claims, bool) {
	claims, ok := r.Context().Value(ContextKeyClaims).(*token.Claims)
	return claims, ok
}

// requestTenant pulls the tenant context placed by RequireAuth.
func requestTenant(r *http.Request) (tenants.Context, bool) {
	tc, ok := r.Context().Value(ContextKeyTenant).(tenants.Context)
	return tc, ok
}
