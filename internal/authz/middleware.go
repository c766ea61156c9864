package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/internal/shared"
)

type scopeKey struct{}

// ScopeFromContext returns the scope stored by Middleware.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	sc, ok := ctx.Value(scopeKey{}).(*Scope)
	return sc, ok
}

// Middleware guards project routes. Routes must carry a {projectID} URL
// parameter and run behind identity.Middleware.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Load builds the caller's scope for the route's project without checking
// any capability.
func (m Middleware) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, ok := m.scope(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey{}, sc)))
	})
}

// RequireCapability lets the request through only when the caller holds c on
// the route's project. Denials answer 403 with the reason code as detail.
func (m Middleware) RequireCapability(c policy.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc, ok := m.scope(w, r)
			if !ok {
				return
			}
			if d := sc.Check(c, nil); !d.Allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", string(d.Reason))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey{}, sc)))
		})
	}
}

func (m Middleware) scope(w http.ResponseWriter, r *http.Request) (*Scope, bool) {
	if sc, ok := ScopeFromContext(r.Context()); ok {
		return sc, true
	}
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrMissingCredentials)
		return nil, false
	}
	sc, err := m.Service.Scope(r.Context(), id, chi.URLParam(r, "projectID"))
	if err != nil {
		if m.Logger != nil && !errors.Is(err, httpx.ErrNotFound) {
			m.Logger.Warn("authz scope", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return nil, false
	}
	return sc, true
}
