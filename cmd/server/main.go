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

	"github.com/STRATINT/echoloop/internal/api"
	"github.com/STRATINT/echoloop/internal/app"
	"github.com/STRATINT/echoloop/internal/auth"
	"github.com/STRATINT/echoloop/internal/config"
	"github.com/STRATINT/echoloop/internal/database"
	"github.com/STRATINT/echoloop/internal/generation"
	"github.com/STRATINT/echoloop/internal/logging"
	"github.com/STRATINT/echoloop/internal/server"
)

const jobDrainTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting echoloop")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, generation.ErrInvalidCredentials) {
			logger.Error("generation credentials rejected, refusing to start", "error", err)
		} else {
			logger.Error("failed to initialise", "error", err)
		}
		os.Exit(1)
	}

	authConfig, err := auth.NewConfig(cfg.Auth)
	if err != nil {
		logger.Error("failed to init auth", "error", err)
		os.Exit(1)
	}
	logger.Info("auth configured",
		"admin_enabled", authConfig.Enabled(),
		"jwt_secret_set", cfg.Auth.JWTSecret != "")

	mux := http.NewServeMux()
	api.SetupRoutes(mux, api.Deps{
		Scheduler:     application.Orchestrator,
		Posts:         application.Store,
		InferenceLogs: application.InferenceLogs,
		Activity:      application.Activity,
		Auth:          authConfig,
		BaseContext:   ctx,
		HealthCheck: func(ctx context.Context) error {
			return database.HealthCheck(ctx, application.DB)
		},
		DatabaseStats: func() database.PoolStats {
			return database.Stats(application.DB)
		},
		Metrics: application.Metrics.Handler(),
	}, logger)

	handler := server.Dashboard(application.Metrics.InstrumentHandler(api.CORS(mux)), cfg.Server.DashboardDir)
	srv := server.New(cfg.Server, logger, handler)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	if cfg.Scheduler.AutoStart {
		application.Orchestrator.StartAllJobs(ctx)
	} else {
		logger.Info("scheduler autostart disabled, start it from the admin api")
	}

	logger.Info("echoloop started", "port", cfg.Server.Port)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}
	stop()

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), jobDrainTimeout)
	defer cancel()
	if err := application.Close(drainCtx); err != nil {
		logger.Error("failed to close cleanly", "error", err)
	}
	logger.Info("shutdown complete")
}
