package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/STRATINT/echoloop/internal/auth"
	"github.com/STRATINT/echoloop/internal/database"
)

// Deps are the collaborators behind the HTTP routes. InferenceLogs,
// Activity, HealthCheck, DatabaseStats and Metrics may be nil.
type Deps struct {
	Scheduler     Scheduler
	Posts         PostReader
	InferenceLogs InferenceLogReader
	Activity      ActivityReader
	Auth          auth.Config
	// BaseContext is the process context that scheduler loops started over
	// HTTP inherit.
	BaseContext   context.Context
	HealthCheck   func(ctx context.Context) error
	DatabaseStats func() database.PoolStats
	Metrics       http.Handler
}

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, deps Deps, logger *slog.Logger) {
	handler := NewHandler(deps.Scheduler, deps.Posts, deps.HealthCheck, deps.DatabaseStats, logger)
	adminHandler := NewAdminHandler(deps.Scheduler, deps.BaseContext, logger)
	authHandler := NewAuthHandler(deps.Auth, logger)

	requireAuth := auth.Middleware(deps.Auth)
	admin := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}

	mux.HandleFunc("/healthz", handler.Health)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.Handle("/api/auth/validate", admin(authHandler.ValidateToken))

	// Read routes (public)
	mux.HandleFunc("/api/scheduler/status", handler.SchedulerStatus)
	mux.HandleFunc("/api/posts/recent", handler.RecentPosts)
	mux.HandleFunc("/api/posts/top", handler.TopPosts)
	mux.HandleFunc("/api/posts/stats", handler.PostStats)
	mux.HandleFunc("/api/insights", handler.Insights)

	if deps.Activity != nil {
		activityHandler := NewActivityLogHandlers(deps.Activity, logger)
		mux.HandleFunc("/api/activity-logs", activityHandler.ListActivities)
	}

	// Scheduler controls (admin only)
	mux.Handle("/api/admin/scheduler/start", admin(adminHandler.StartScheduler))
	mux.Handle("/api/admin/scheduler/stop", admin(adminHandler.StopScheduler))
	mux.Handle("/api/admin/post-now", admin(adminHandler.PostNow))
	mux.Handle("/api/admin/trend-summary", admin(adminHandler.TrendSummary))
	mux.Handle("/api/admin/posts", admin(adminHandler.ManualPost))
	mux.Handle("/api/admin/reply-mentions", admin(adminHandler.ReplyMentions))
	mux.Handle("/api/admin/track-metrics", admin(adminHandler.TrackMetrics))

	if deps.InferenceLogs != nil {
		inferenceLogHandler := NewInferenceLogHandler(deps.InferenceLogs, logger)
		mux.Handle("/api/admin/inference-logs", admin(inferenceLogHandler.ListInferenceLogs))
		mux.Handle("/api/admin/inference-logs/stats", admin(inferenceLogHandler.GetInferenceStats))
	}
}

// CORS sets permissive CORS headers and answers preflight requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
