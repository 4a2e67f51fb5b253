package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// AdminHandler serves the authenticated scheduler controls.
type AdminHandler struct {
	scheduler Scheduler
	// baseCtx outlives requests; jobs started over HTTP run under it.
	baseCtx context.Context
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(s Scheduler, baseCtx context.Context, logger *slog.Logger) *AdminHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &AdminHandler{scheduler: s, baseCtx: baseCtx, logger: logger}
}

// actionContext detaches a one-shot action from the request so a client
// disconnect never abandons a half-published post.
func actionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// StartScheduler handles POST /api/admin/scheduler/start
func (h *AdminHandler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodPost) {
		return
	}
	h.scheduler.StartAllJobs(h.baseCtx)
	h.logger.Info("scheduler started via admin api")
	writeJSON(w, h.logger, http.StatusOK, map[string]bool{"running": h.scheduler.Running()})
}

// StopScheduler handles POST /api/admin/scheduler/stop
func (h *AdminHandler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodPost) {
		return
	}
	h.scheduler.StopAllJobs()
	h.logger.Info("scheduler stopped via admin api")
	writeJSON(w, h.logger, http.StatusOK, map[string]bool{"running": h.scheduler.Running()})
}

// PostNow handles POST /api/admin/post-now
func (h *AdminHandler) PostNow(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodPost) {
		return
	}
	if err := h.scheduler.PostScheduledTweet(actionContext(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "published"})
}

// TrendSummary handles POST /api/admin/trend-summary
func (h *AdminHandler) TrendSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodPost) {
		return
	}
	if err := h.scheduler.PostTrendSummary(actionContext(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "published"})
}

// ManualPost handles POST /api/admin/posts
func (h *AdminHandler) ManualPost(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodPost) {
		return
	}

	var req ManualPostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, h.logger, err)
		return
	}

	post, err := h.scheduler.PublishManual(actionContext(r), req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, post)
}

// ReplyMentions handles POST /api/admin/reply-mentions
func (h *AdminHandler) ReplyMentions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodPost) {
		return
	}
	n, err := h.scheduler.CheckAndReplyToMentions(actionContext(r))
	if err != nil && n == 0 {
		writeError(w, h.logger, err)
		return
	}

	resp := map[string]interface{}{"replied": n}
	if err != nil {
		resp["errors"] = err.Error()
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// TrackMetrics handles POST /api/admin/track-metrics
func (h *AdminHandler) TrackMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodPost) {
		return
	}
	n, err := h.scheduler.TrackTweetMetrics(actionContext(r))
	if err != nil && n == 0 {
		writeError(w, h.logger, err)
		return
	}

	resp := map[string]interface{}{"processed": n}
	if err != nil {
		resp["errors"] = err.Error()
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
