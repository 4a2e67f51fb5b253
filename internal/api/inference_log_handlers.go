package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/STRATINT/echoloop/internal/models"
)

// InferenceLogReader is the read side of the generation call log.
type InferenceLogReader interface {
	List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error)
	GetStats(ctx context.Context, since time.Time) (*models.InferenceLogStats, error)
}

// InferenceLogHandler serves the generation call log.
type InferenceLogHandler struct {
	repo   InferenceLogReader
	logger *slog.Logger
}

// NewInferenceLogHandler creates a new handler
func NewInferenceLogHandler(repo InferenceLogReader, logger *slog.Logger) *InferenceLogHandler {
	return &InferenceLogHandler{
		repo:   repo,
		logger: logger,
	}
}

// ListInferenceLogs handles GET /api/admin/inference-logs
func (h *InferenceLogHandler) ListInferenceLogs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	limit, err := parseLimit(q, maxListLimit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	since, err := parseSince(q, time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	query := models.InferenceLogQuery{
		Operation: q.Get("operation"),
		Status:    q.Get("status"),
		Limit:     limit,
	}
	if !since.IsZero() {
		query.Since = &since
	}

	logs, err := h.repo.List(r.Context(), query)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
		"limit": query.Limit,
	})
}

// GetInferenceStats handles GET /api/admin/inference-logs/stats. Without a
// since parameter the last 24 hours are summarised.
func (h *InferenceLogHandler) GetInferenceStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}

	now := time.Now()
	since, err := parseSince(r.URL.Query(), now)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if since.IsZero() {
		since = now.Add(-24 * time.Hour)
	}

	stats, err := h.repo.GetStats(r.Context(), since)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}
