package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/echoloop/internal/models"
)

const providerOpenAI = "openai"

// Repository stores generation log rows.
type Repository interface {
	Create(ctx context.Context, log models.InferenceLog) error
}

// Logger records generation calls to the database without blocking the caller.
type Logger struct {
	repo   Repository
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewLogger creates a new inference logger
func NewLogger(repo Repository, logger *slog.Logger) *Logger {
	return &Logger{
		repo:   repo,
		logger: logger,
	}
}

// Usage is the token accounting reported by the generation API.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Call describes one finished generation request.
type Call struct {
	Model     string
	Operation string
	Usage     Usage
	Latency   time.Duration
	Err       error
	Metadata  map[string]interface{}
}

// Record logs a generation call asynchronously.
func (l *Logger) Record(ctx context.Context, call Call) {
	if l == nil || l.repo == nil {
		return
	}

	var metadataJSON string
	if call.Metadata != nil {
		if b, err := json.Marshal(call.Metadata); err == nil {
			metadataJSON = string(b)
		}
	}

	latencyMs := int(call.Latency.Milliseconds())
	prompt := call.Usage.PromptTokens
	completion := call.Usage.CompletionTokens

	entry := models.InferenceLog{
		Provider:     providerOpenAI,
		Model:        call.Model,
		Operation:    call.Operation,
		TokensUsed:   call.Usage.TotalTokens,
		InputTokens:  &prompt,
		OutputTokens: &completion,
		LatencyMs:    &latencyMs,
		Status:       "success",
		Metadata:     metadataJSON,
	}
	if call.Err != nil {
		entry.Status = "error"
		msg := call.Err.Error()
		entry.ErrorMessage = &msg
	}

	bgCtx := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.repo.Create(bgCtx, entry); err != nil {
			l.logger.Error("failed to log inference call", "operation", entry.Operation, "error", err)
		}
	}()
}

// Wait blocks until pending writes finish.
func (l *Logger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}
