package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/STRATINT/echoloop/internal/config"
	"github.com/STRATINT/echoloop/internal/inference"
	"github.com/STRATINT/echoloop/internal/logging"
	"github.com/STRATINT/echoloop/internal/models"
)

func TestSchedulerConfigFromEnvConfig(t *testing.T) {
	cfg := config.Config{
		Twitter: config.TwitterConfig{UserID: "42", PeerAccounts: []string{"alice"}},
		Scheduler: config.SchedulerConfig{
			PostInterval:     2 * time.Hour,
			MentionInterval:  15 * time.Minute,
			MetricsInterval:  6 * time.Hour,
			MentionWindow:    30 * time.Minute,
			FreshnessWindow:  48 * time.Hour,
			WatchlistCap:     5,
			MentionBatchSize: 20,
		},
	}

	sc := schedulerConfig(cfg)
	if sc.PostInterval != 2*time.Hour || sc.MetricsInterval != 6*time.Hour || sc.MentionWindow != 30*time.Minute {
		t.Errorf("unexpected intervals %+v", sc)
	}
	if sc.WatchlistCap != 5 || sc.MentionBatchSize != 20 || sc.SelfUserID != "42" {
		t.Errorf("unexpected bounds %+v", sc)
	}
	if sc.RecentSample != 10 || sc.TopSample != 5 {
		t.Errorf("expected default insight samples, got %d/%d", sc.RecentSample, sc.TopSample)
	}

	ac := aggregatorConfig(cfg)
	if ac.FreshnessWindow != 48*time.Hour || len(ac.PeerAccounts) != 1 {
		t.Errorf("unexpected aggregator config %+v", ac)
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(context.Background(), config.Config{}, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

type fakeValidator struct{ err error }

func (v fakeValidator) ValidateCredentials(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a bounded context")
	}
	return v.err
}

func TestValidateTwitter(t *testing.T) {
	if err := validateTwitter(context.Background(), fakeValidator{}); err != nil {
		t.Fatalf("expected accepted credentials, got %v", err)
	}

	rejected := errors.New("401 Unauthorized")
	err := validateTwitter(context.Background(), fakeValidator{err: rejected})
	if !errors.Is(err, rejected) || !strings.Contains(err.Error(), "twitter credential check") {
		t.Fatalf("expected wrapped rejection, got %v", err)
	}
}

type slowInferenceRepo struct {
	mu      sync.Mutex
	written int
}

func (r *slowInferenceRepo) Create(context.Context, models.InferenceLog) error {
	time.Sleep(20 * time.Millisecond)
	r.mu.Lock()
	r.written++
	r.mu.Unlock()
	return nil
}

func TestAbortFlushesInferenceLogBeforeClosingDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	mock.ExpectClose()

	repo := &slowInferenceRepo{}
	a := &App{DB: db, InferenceLogger: inference.NewLogger(repo, logging.Discard()), logger: logging.Discard()}
	a.InferenceLogger.Record(context.Background(), inference.Call{Model: "gpt-4o-mini", Operation: "check_credentials"})

	a.abort()

	repo.mu.Lock()
	written := repo.written
	repo.mu.Unlock()
	if written != 1 {
		t.Fatalf("expected pending log write flushed before close, got %d writes", written)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("database not closed: %v", err)
	}
}
