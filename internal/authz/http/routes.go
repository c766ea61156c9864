package authzhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/internal/shared"
)

// MountRoutes registers the permission API onto an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}

	r.Get("/presets", h.handlePresets)
	r.Get("/presets/{name}", h.handlePreset)
	r.Get("/capabilities", h.handleCapabilities)

	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.With(h.authz.Load).Post("/check", h.handleCheck)
		r.With(h.authz.Load).Get("/capabilities", h.handleEffective)

		r.Group(func(gr chi.Router) {
			gr.Use(h.authz.RequireCapability(policy.CapManageTeam))
			gr.Get("/permissions", h.handleListGrants)
			gr.Get("/permissions/{userID}", h.handleGetGrant)
		})
		r.Group(func(gr chi.Router) {
			gr.Use(h.writeLimiter())
			gr.With(h.authz.RequireCapability(policy.CapManageTeam)).Put("/permissions/{userID}", h.handleAssign)
			gr.With(h.authz.RequireCapability(policy.CapAdmin)).Delete("/permissions/{userID}", h.handleRevoke)
		})
	})
}

func (h *Handler) writeLimiter() func(http.Handler) http.Handler {
	if h.writeRate <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(h.writeRate, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "grant write limit reached")
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if id, ok := shared.IdentityFromContext(r.Context()); ok && id.UserID != "" {
		return "user:" + id.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
