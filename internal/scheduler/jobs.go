package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/echoloop/internal/models"
)

// Job names, used in logs, metrics and status.
const (
	JobPost     = "post"
	JobMentions = "mentions"
	JobMetrics  = "metrics"
	JobManual   = "manual"
)

// ErrJobAlreadyRunning is returned when an invocation overlaps a running
// invocation of the same job. The redundant invocation is dropped.
var ErrJobAlreadyRunning = errors.New("job already running")

// Recorder receives job and publishing metrics.
type Recorder interface {
	ObserveJob(job, outcome string, d time.Duration)
	SetWatchlistSize(n int)
	IncPublished(kind string)
}

// ActivityLog persists one entry per finished job run.
type ActivityLog interface {
	Log(ctx context.Context, entry models.ActivityLog) error
}

const activityWriteTimeout = 5 * time.Second

type noopRecorder struct{}

func (noopRecorder) ObserveJob(string, string, time.Duration) {}
func (noopRecorder) SetWatchlistSize(int)                     {}
func (noopRecorder) IncPublished(string)                      {}

// JobStatus is the last known state of one job.
type JobStatus struct {
	Running      bool      `json:"running"`
	LastStarted  time.Time `json:"last_started,omitempty"`
	LastFinished time.Time `json:"last_finished,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Runs         int64     `json:"runs"`
}

type jobState struct {
	running atomic.Bool

	mu     sync.Mutex
	status JobStatus
}

// jobRunner guards each named job against overlapping invocations and turns
// panics into errors.
type jobRunner struct {
	logger   *slog.Logger
	metrics  Recorder
	activity ActivityLog
	now      func() time.Time
	jobs     map[string]*jobState
}

func newJobRunner(logger *slog.Logger, metrics Recorder, activity ActivityLog, now func() time.Time, names ...string) *jobRunner {
	r := &jobRunner{
		logger:   logger,
		metrics:  metrics,
		activity: activity,
		now:      now,
		jobs:     make(map[string]*jobState, len(names)),
	}
	for _, name := range names {
		r.jobs[name] = &jobState{}
	}
	return r
}

// run executes fn unless the same job is already running. Errors and panics
// are logged and returned; they never escape as panics.
func (r *jobRunner) run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	state, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	if !state.running.CompareAndSwap(false, true) {
		r.logger.Warn("job already running, dropping invocation", "job", name)
		r.metrics.ObserveJob(name, "skipped", 0)
		return ErrJobAlreadyRunning
	}
	defer state.running.Store(false)

	runID := uuid.NewString()
	logger := r.logger.With("job", name, "run_id", runID)
	start := r.now()

	state.mu.Lock()
	state.status.LastStarted = start
	state.status.Runs++
	state.mu.Unlock()

	outcome := "success"
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", name, rec)
			outcome = "panic"
			logger.Error("job panicked", "panic", rec, "stack", string(debug.Stack()))
		}

		finished := r.now()
		state.mu.Lock()
		state.status.LastFinished = finished
		state.status.LastError = ""
		if err != nil {
			state.status.LastError = err.Error()
		}
		state.mu.Unlock()

		r.metrics.ObserveJob(name, outcome, finished.Sub(start))
		r.recordActivity(ctx, logger, name, runID, outcome, finished, finished.Sub(start), err)
	}()

	logger.Debug("job started")
	if err = fn(ctx); err != nil {
		outcome = "error"
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		return err
	}
	logger.Info("job completed", "duration", time.Since(start))
	return nil
}

func (r *jobRunner) recordActivity(ctx context.Context, logger *slog.Logger, name, runID, outcome string, at time.Time, d time.Duration, err error) {
	if r.activity == nil {
		return
	}

	entry := models.ActivityLog{
		Timestamp:    at,
		ActivityType: models.ActivityType(name),
		RunID:        runID,
		Outcome:      outcome,
		Message:      fmt.Sprintf("%s job %s", name, outcome),
	}
	ms := int(d.Milliseconds())
	entry.DurationMs = &ms
	if err != nil {
		entry.Details = map[string]interface{}{"error": err.Error()}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activityWriteTimeout)
	defer cancel()
	if logErr := r.activity.Log(writeCtx, entry); logErr != nil {
		logger.Warn("failed to record job activity", "error", logErr)
	}
}

func (r *jobRunner) status() map[string]JobStatus {
	out := make(map[string]JobStatus, len(r.jobs))
	for name, state := range r.jobs {
		state.mu.Lock()
		s := state.status
		state.mu.Unlock()
		s.Running = state.running.Load()
		out[name] = s
	}
	return out
}
