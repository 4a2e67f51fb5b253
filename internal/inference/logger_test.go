package inference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/STRATINT/echoloop/internal/logging"
	"github.com/STRATINT/echoloop/internal/models"
)

type recordingRepo struct {
	mu   sync.Mutex
	logs []models.InferenceLog
	err  error
}

func (r *recordingRepo) Create(_ context.Context, log models.InferenceLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

func TestRecordSuccess(t *testing.T) {
	repo := &recordingRepo{}
	l := NewLogger(repo, logging.Discard())

	l.Record(context.Background(), Call{
		Model:     "gpt-4o-mini",
		Operation: "post",
		Usage:     Usage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
		Latency:   250 * time.Millisecond,
		Metadata:  map[string]interface{}{"trending": 3},
	})
	l.Wait()

	if len(repo.logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(repo.logs))
	}
	got := repo.logs[0]
	if got.Status != "success" || got.ErrorMessage != nil {
		t.Errorf("unexpected status: %s %v", got.Status, got.ErrorMessage)
	}
	if got.TokensUsed != 140 || *got.InputTokens != 100 || *got.OutputTokens != 40 {
		t.Errorf("unexpected token accounting: %+v", got)
	}
	if *got.LatencyMs != 250 {
		t.Errorf("expected latency 250ms, got %d", *got.LatencyMs)
	}
	if got.Metadata != `{"trending":3}` {
		t.Errorf("unexpected metadata %q", got.Metadata)
	}
}

func TestRecordErrorDoesNotPropagateStoreFailure(t *testing.T) {
	repo := &recordingRepo{err: errors.New("db down")}
	l := NewLogger(repo, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l.Record(ctx, Call{Model: "gpt-4o-mini", Operation: "reply", Err: errors.New("429 too many requests")})
	l.Wait()

	if len(repo.logs) != 1 {
		t.Fatalf("expected write attempt even with cancelled caller context, got %d", len(repo.logs))
	}
	if repo.logs[0].Status != "error" || *repo.logs[0].ErrorMessage != "429 too many requests" {
		t.Errorf("unexpected log: %+v", repo.logs[0])
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Record(context.Background(), Call{Operation: "post"})
	l.Wait()
}
