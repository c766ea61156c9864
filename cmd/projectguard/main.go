package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/workboard/projectguard/internal/app"
	"github.com/workboard/projectguard/internal/authz"
	authzhttp "github.com/workboard/projectguard/internal/authz/http"
	"github.com/workboard/projectguard/internal/grants"
	"github.com/workboard/projectguard/internal/identity"
	"github.com/workboard/projectguard/internal/observability"
	"github.com/workboard/projectguard/internal/platform/cache"
	"github.com/workboard/projectguard/internal/platform/db"
	"github.com/workboard/projectguard/internal/projects"
	"github.com/workboard/projectguard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	verifier, err := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTLeeway)
	if err != nil {
		logger.Error("init token verifier", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	projectRepo := projects.NewRepository(dbpool)
	grantRepo := grants.NewRepository(dbpool)
	grantService := grants.NewService(grantRepo, projectRepo, logger)
	authzService := authz.NewService(projectRepo, grantService, metrics, logger)
	authzMiddleware := authz.Middleware{Service: authzService, Logger: logger}
	permissionsHandler := authzhttp.NewHandler(logger, grantService, authzMiddleware, cfg.GrantWritesPerMinute)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Database:           dbpool,
		Redis:              redisClient,
		Identity:           identity.Middleware{Verifier: verifier, Logger: logger},
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
