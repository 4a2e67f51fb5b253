package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/STRATINT/echoloop/internal/models"
)

// ActivityReader lists finished job runs.
type ActivityReader interface {
	List(ctx context.Context, limit int, activityType string) ([]models.ActivityLog, error)
}

type ActivityLogHandlers struct {
	repo   ActivityReader
	logger *slog.Logger
}

func NewActivityLogHandlers(repo ActivityReader, logger *slog.Logger) *ActivityLogHandlers {
	return &ActivityLogHandlers{
		repo:   repo,
		logger: logger,
	}
}

// ListActivities handles GET /api/activity-logs
func (h *ActivityLogHandlers) ListActivities(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}

	limit, err := parseLimit(r.URL.Query(), 50)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	logs, err := h.repo.List(r.Context(), limit, r.URL.Query().Get("activity_type"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}
