package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/STRATINT/echoloop/internal/database"
	"github.com/STRATINT/echoloop/internal/engagement"
	"github.com/STRATINT/echoloop/internal/models"
	"github.com/STRATINT/echoloop/internal/scheduler"
)

// Scheduler is the orchestrator surface exposed over HTTP.
type Scheduler interface {
	StartAllJobs(ctx context.Context)
	StopAllJobs()
	Running() bool
	Status() scheduler.Status
	PostScheduledTweet(ctx context.Context) error
	PostTrendSummary(ctx context.Context) error
	PublishManual(ctx context.Context, text string) (models.Post, error)
	CheckAndReplyToMentions(ctx context.Context) (int, error)
	TrackTweetMetrics(ctx context.Context) (int, error)
	Insights(ctx context.Context) (models.Insight, error)
}

// PostReader is the read side of the engagement store.
type PostReader interface {
	GetRecentPostsWithMetrics(ctx context.Context, limit int) ([]models.PostWithMetrics, error)
	GetTopPerformingPosts(ctx context.Context, limit int) ([]models.PostWithMetrics, error)
	CountPosts(ctx context.Context) (map[models.PostKind]int, error)
}

// Handler serves the public read endpoints.
type Handler struct {
	scheduler   Scheduler
	posts       PostReader
	healthCheck func(ctx context.Context) error
	poolStats   func() database.PoolStats
	logger      *slog.Logger
	startTime   time.Time
}

// NewHandler creates the read handler. healthCheck and poolStats may be nil.
func NewHandler(s Scheduler, posts PostReader, healthCheck func(ctx context.Context) error, poolStats func() database.PoolStats, logger *slog.Logger) *Handler {
	return &Handler{
		scheduler:   s,
		posts:       posts,
		healthCheck: healthCheck,
		poolStats:   poolStats,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":            "ok",
		"scheduler_running": h.scheduler.Running(),
		"uptime_seconds":    int(time.Since(h.startTime).Seconds()),
	}
	if h.poolStats != nil {
		resp["database_pool"] = h.poolStats()
	}

	if h.healthCheck != nil {
		if err := h.healthCheck(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			resp["status"] = "degraded"
			resp["database"] = err.Error()
			writeJSON(w, h.logger, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// SchedulerStatus handles GET /api/scheduler/status
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.scheduler.Status())
}

type postsResponse struct {
	Posts []postView `json:"posts"`
	Count int        `json:"count"`
}

type postView struct {
	models.PostWithMetrics
	Score *float64 `json:"score,omitempty"`
}

func toViews(posts []models.PostWithMetrics) []postView {
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		v := postView{PostWithMetrics: p}
		if p.Latest != nil {
			score := engagement.Score(p.Latest)
			v.Score = &score
		}
		views = append(views, v)
	}
	return views
}

// RecentPosts handles GET /api/posts/recent
func (h *Handler) RecentPosts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}
	limit, err := parseLimit(r.URL.Query(), engagement.DefaultRecentSample)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	posts, err := h.posts.GetRecentPostsWithMetrics(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, postsResponse{Posts: toViews(posts), Count: len(posts)})
}

// TopPosts handles GET /api/posts/top
func (h *Handler) TopPosts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}
	limit, err := parseLimit(r.URL.Query(), engagement.DefaultTopSample)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	posts, err := h.posts.GetTopPerformingPosts(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, postsResponse{Posts: toViews(posts), Count: len(posts)})
}

// PostStats handles GET /api/posts/stats
func (h *Handler) PostStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}
	counts, err := h.posts.CountPosts(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"by_kind": counts,
		"total":   total,
	})
}

// Insights handles GET /api/insights. The insight is recomputed from the store.
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, h.logger, http.MethodGet) {
		return
	}
	insight, err := h.scheduler.Insights(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, insight)
}
