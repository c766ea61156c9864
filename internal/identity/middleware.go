package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/internal/shared"
)

// Middleware rejects requests without a valid bearer token and stores the
// verified identity in the request context.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// Require is the chi-compatible middleware.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="projectguard"`)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrMissingCredentials.Error())
			return
		}
		identity, err := m.Verifier.Verify(token)
		if err != nil {
			if m.Logger != nil && !errors.Is(err, shared.ErrMissingCredentials) {
				m.Logger.Info("bearer token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="projectguard", error="invalid_token"`)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrInvalidCredentials.Error())
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits only identities holding one of roles. It runs after
// Require.
func RequireRole(roles ...policy.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrMissingCredentials)
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not permitted")
		})
	}
}
