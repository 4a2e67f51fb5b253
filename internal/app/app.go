// Package app wires the configured collaborators into an orchestrator. It is
// shared by the server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/STRATINT/echoloop/internal/aggregator"
	"github.com/STRATINT/echoloop/internal/cloudsql"
	"github.com/STRATINT/echoloop/internal/config"
	"github.com/STRATINT/echoloop/internal/database"
	"github.com/STRATINT/echoloop/internal/generation"
	"github.com/STRATINT/echoloop/internal/inference"
	"github.com/STRATINT/echoloop/internal/market"
	"github.com/STRATINT/echoloop/internal/metrics"
	"github.com/STRATINT/echoloop/internal/scheduler"
	"github.com/STRATINT/echoloop/internal/social"
)

const credentialCheckTimeout = 30 * time.Second

// App holds the wired service.
type App struct {
	DB              *sql.DB
	Store           *database.EngagementRepository
	InferenceLogs   *database.InferenceLogRepository
	Activity        *database.ActivityLogRepository
	InferenceLogger *inference.Logger
	Gateway         *generation.Gateway
	Twitter         *social.TwitterClient
	Market          *market.Client
	Aggregator      *aggregator.Aggregator
	Metrics         *metrics.Collector
	Orchestrator    *scheduler.Orchestrator

	logger *slog.Logger
}

// OpenDatabase connects to the engagement store and applies pending migrations.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.URL
	if cfg.MaxConnections > 0 {
		dbCfg.MaxConnections = cfg.MaxConnections
	}

	logger.Info("connecting to database", "target", cloudsql.Redact(cfg.URL))
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}

	if err := database.RunMigrations(ctx, db, database.Migrations(), logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database ready")
	return db, nil
}

// New builds every collaborator and the orchestrator. Generation and Twitter
// credentials are checked before anything is scheduled; a rejected
// generation key is returned wrapping generation.ErrInvalidCredentials.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		DB:            db,
		Store:         database.NewEngagementRepository(db),
		InferenceLogs: database.NewInferenceLogRepository(db),
		Activity:      database.NewActivityLogRepository(db),
		logger:        logger,
	}
	a.InferenceLogger = inference.NewLogger(a.InferenceLogs, logger)

	generator := generation.NewOpenAIGenerator(openAIConfig(cfg.OpenAI), logger, a.InferenceLogger)
	a.Gateway = generation.NewGateway(generator, logger)

	checkCtx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
	defer cancel()
	if err := a.Gateway.CheckCredentials(checkCtx); err != nil {
		a.abort()
		return nil, fmt.Errorf("generation credential check: %w", err)
	}
	logger.Info("generation credentials verified", "model", cfg.OpenAI.Model)

	a.Twitter = social.NewTwitterClient(twitterCredentials(cfg.Twitter), cfg.Twitter.UserID, logger)
	if err := validateTwitter(ctx, a.Twitter); err != nil {
		a.abort()
		return nil, err
	}
	a.Market = market.NewClient(cfg.Market.BaseURL, cfg.Market.APIKey, market.DefaultBreakerConfig(), logger)

	aggCfg := aggregatorConfig(cfg)
	freshness := aggregator.NewFreshnessTracker(aggCfg.FreshnessWindow, time.Now)
	a.Aggregator = aggregator.New(a.Market, a.Twitter, freshness, aggCfg, logger)

	a.Metrics, err = metrics.NewCollector()
	if err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	a.Orchestrator = scheduler.New(scheduler.Deps{
		Store:      a.Store,
		Publisher:  a.Twitter,
		Generator:  a.Gateway,
		Aggregator: a.Aggregator,
		Metrics:    a.Metrics,
		Activity:   a.Activity,
	}, schedulerConfig(cfg), logger)

	return a, nil
}

// Close stops the scheduler, waits for in-flight work and closes the
// database. ctx bounds the wait.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	a.Orchestrator.StopAllJobs()
	if err := a.Orchestrator.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for jobs: %w", err))
	}

	a.InferenceLogger.Wait()

	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	a.logger.Info("application closed")
	return errors.Join(errs...)
}

// abort releases what New opened before a later step failed. Pending
// generation log writes finish before the database is closed.
func (a *App) abort() {
	a.InferenceLogger.Wait()
	if err := a.DB.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

// CredentialValidator checks platform credentials.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context) error
}

// validateTwitter rejects user-context tokens the platform does not accept,
// so the service never schedules posts it cannot publish.
func validateTwitter(ctx context.Context, v CredentialValidator) error {
	checkCtx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
	defer cancel()
	if err := v.ValidateCredentials(checkCtx); err != nil {
		return fmt.Errorf("twitter credential check: %w", err)
	}
	return nil
}

func openAIConfig(cfg config.OpenAIConfig) generation.OpenAIConfig {
	return generation.OpenAIConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		Retry:       generation.DefaultRetryPolicy(),
	}
}

func twitterCredentials(cfg config.TwitterConfig) social.Credentials {
	return social.Credentials{
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		AccessToken:       cfg.AccessToken,
		AccessTokenSecret: cfg.AccessTokenSecret,
		BearerToken:       cfg.BearerToken,
	}
}

func aggregatorConfig(cfg config.Config) aggregator.Config {
	out := aggregator.DefaultConfig()
	out.PeerAccounts = cfg.Twitter.PeerAccounts
	out.FreshnessWindow = cfg.Scheduler.FreshnessWindow
	return out
}

func schedulerConfig(cfg config.Config) scheduler.Config {
	out := scheduler.DefaultConfig()
	out.PostInterval = cfg.Scheduler.PostInterval
	out.MentionInterval = cfg.Scheduler.MentionInterval
	out.MetricsInterval = cfg.Scheduler.MetricsInterval
	out.MentionWindow = cfg.Scheduler.MentionWindow
	out.MentionBatchSize = cfg.Scheduler.MentionBatchSize
	out.WatchlistCap = cfg.Scheduler.WatchlistCap
	out.SelfUserID = cfg.Twitter.UserID
	return out
}
