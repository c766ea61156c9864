package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	authzhttp "github.com/workboard/projectguard/internal/authz/http"
	"github.com/workboard/projectguard/internal/identity"
	"github.com/workboard/projectguard/internal/observability"
	"github.com/workboard/projectguard/internal/platform/cache"
	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/jobs"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Database           Pinger
	Redis              redis.UniversalClient
	Identity           identity.Middleware
	PermissionsHandler *authzhttp.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with projectguard defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params))

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.Identity.Require)
			r.Use(identity.RequireRole(policy.RoleAdmin))
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.PermissionsHandler != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Use(params.Identity.Require)
			params.PermissionsHandler.MountRoutes(r)
		})
	}

	return r
}

func readiness(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		ready := true
		if params.Database == nil {
			checks["postgres"] = "not configured"
			ready = false
		} else if err := params.Database.Ping(r.Context()); err != nil {
			params.Logger.Warn("readiness postgres", slog.Any("error", err))
			checks["postgres"] = "unavailable"
			ready = false
		}
		if err := cache.Ping(r.Context(), params.Redis); err != nil {
			params.Logger.Warn("readiness redis", slog.Any("error", err))
			checks["redis"] = "unavailable"
			ready = false
		}
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, map[string]any{"ready": ready, "checks": checks})
	}
}
