package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/auth"
	"github.com/STRATINT/echoloop/internal/database"
	"github.com/STRATINT/echoloop/internal/logging"
	"github.com/STRATINT/echoloop/internal/models"
	"github.com/STRATINT/echoloop/internal/scheduler"
)

type ctxKey struct{}

type fakeScheduler struct {
	running     bool
	startCtx    context.Context
	postErr     error
	manualErr   error
	manualText  string
	replied     int
	mentionErr  error
	processed   int
	trackErr    error
	insight     models.Insight
	trendCalled bool
}

func (s *fakeScheduler) StartAllJobs(ctx context.Context) {
	s.startCtx = ctx
	s.running = true
}

func (s *fakeScheduler) StopAllJobs() { s.running = false }
func (s *fakeScheduler) Running() bool { return s.running }

func (s *fakeScheduler) Status() scheduler.Status {
	return scheduler.Status{Running: s.running, WatchlistSize: 2}
}

func (s *fakeScheduler) PostScheduledTweet(context.Context) error { return s.postErr }

func (s *fakeScheduler) PostTrendSummary(context.Context) error {
	s.trendCalled = true
	return s.postErr
}

func (s *fakeScheduler) PublishManual(_ context.Context, text string) (models.Post, error) {
	s.manualText = text
	if s.manualErr != nil {
		return models.Post{}, s.manualErr
	}
	return models.Post{ID: "1", Text: text, Kind: models.PostKindManual}, nil
}

func (s *fakeScheduler) CheckAndReplyToMentions(context.Context) (int, error) {
	return s.replied, s.mentionErr
}

func (s *fakeScheduler) TrackTweetMetrics(context.Context) (int, error) {
	return s.processed, s.trackErr
}

func (s *fakeScheduler) Insights(context.Context) (models.Insight, error) {
	return s.insight, nil
}

type fakePosts struct {
	recent    []models.PostWithMetrics
	lastLimit int
	err       error
}

func (p *fakePosts) GetRecentPostsWithMetrics(_ context.Context, limit int) ([]models.PostWithMetrics, error) {
	p.lastLimit = limit
	return p.recent, p.err
}

func (p *fakePosts) GetTopPerformingPosts(_ context.Context, limit int) ([]models.PostWithMetrics, error) {
	p.lastLimit = limit
	return nil, p.err
}

func (p *fakePosts) CountPosts(context.Context) (map[models.PostKind]int, error) {
	return map[models.PostKind]int{models.PostKindGenerated: 3, models.PostKindReply: 2}, nil
}

type fakeInferenceLogs struct {
	query models.InferenceLogQuery
	since time.Time
}

func (f *fakeInferenceLogs) List(_ context.Context, q models.InferenceLogQuery) ([]models.InferenceLog, error) {
	f.query = q
	return []models.InferenceLog{{ID: 1, Operation: "post"}}, nil
}

func (f *fakeInferenceLogs) GetStats(_ context.Context, since time.Time) (*models.InferenceLogStats, error) {
	f.since = since
	return &models.InferenceLogStats{TotalCalls: 4}, nil
}

type testServer struct {
	handler   http.Handler
	scheduler *fakeScheduler
	posts     *fakePosts
	inference *fakeInferenceLogs
	token     string
	baseCtx   context.Context
	healthErr error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := auth.HashPassword("letmein")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	authCfg := auth.Config{JWTSecret: "test-secret", PasswordHash: hash, TokenDuration: time.Hour}
	token, _, err := auth.GenerateToken("admin", authCfg.JWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	ts := &testServer{
		scheduler: &fakeScheduler{},
		posts:     &fakePosts{},
		inference: &fakeInferenceLogs{},
		token:     token,
		baseCtx:   context.WithValue(context.Background(), ctxKey{}, "base"),
	}

	mux := http.NewServeMux()
	SetupRoutes(mux, Deps{
		Scheduler:     ts.scheduler,
		Posts:         ts.posts,
		InferenceLogs: ts.inference,
		Auth:          authCfg,
		BaseContext:   ts.baseCtx,
		HealthCheck:   func(context.Context) error { return ts.healthErr },
		DatabaseStats: func() database.PoolStats { return database.PoolStats{MaxOpenConnections: 25, InUse: 2} },
	}, logging.Discard())
	ts.handler = CORS(mux)
	return ts
}

func (ts *testServer) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health struct {
		Status string             `json:"status"`
		Pool   database.PoolStats `json:"database_pool"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health.Status != "ok" || health.Pool.MaxOpenConnections != 25 || health.Pool.InUse != 2 {
		t.Errorf("unexpected health body %+v", health)
	}

	ts.healthErr = errors.New("connection refused")
	rec = ts.do(http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the database is down, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	paths := []string{
		"/api/admin/scheduler/start",
		"/api/admin/scheduler/stop",
		"/api/admin/post-now",
		"/api/admin/trend-summary",
		"/api/admin/posts",
		"/api/admin/reply-mentions",
		"/api/admin/track-metrics",
		"/api/admin/inference-logs",
	}
	for _, path := range paths {
		if rec := ts.do(http.MethodPost, path, "", false); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/auth/login", `{"password":"wrong"}`, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/auth/login", `{"password":"letmein"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, err := auth.ValidateToken(resp.Token, "test-secret"); err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
}

func TestStartSchedulerUsesBaseContext(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/admin/scheduler/start", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.scheduler.startCtx == nil || ts.scheduler.startCtx.Value(ctxKey{}) != "base" {
		t.Fatal("scheduler loops must not inherit the request context")
	}

	rec = ts.do(http.MethodPost, "/api/admin/scheduler/stop", "", true)
	if rec.Code != http.StatusOK || ts.scheduler.running {
		t.Fatalf("expected scheduler stopped, got %d running=%v", rec.Code, ts.scheduler.running)
	}
}

func TestPostNowErrorMapping(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"success":    {nil, http.StatusOK},
		"overlap":    {scheduler.ErrJobAlreadyRunning, http.StatusConflict},
		"too long":   {fmt.Errorf("generate post: %w", apperrors.Validation("text", "too long")), http.StatusBadRequest},
		"upstream":   {apperrors.Transport("twitter", "post tweet", 503, errors.New("unavailable")), http.StatusBadGateway},
		"unexpected": {errors.New("boom"), http.StatusInternalServerError},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.scheduler.postErr = tc.err

			rec := ts.do(http.MethodPost, "/api/admin/post-now", "", true)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestManualPost(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(http.MethodPost, "/api/admin/posts", `{"text":"  "}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPost, "/api/admin/posts", `not json`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}

	rec := ts.do(http.MethodPost, "/api/admin/posts", `{"text":"gm"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ts.scheduler.manualText != "gm" {
		t.Errorf("expected text forwarded, got %q", ts.scheduler.manualText)
	}
}

func TestReplyMentionsPartialFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.scheduler.replied = 2
	ts.scheduler.mentionErr = errors.New("mention m2: generate reply: upstream error")

	rec := ts.do(http.MethodPost, "/api/admin/reply-mentions", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for partial success, got %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["replied"] != float64(2) || resp["errors"] == nil {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestRecentPosts(t *testing.T) {
	ts := newTestServer(t)
	ts.posts.recent = []models.PostWithMetrics{
		{Post: models.Post{ID: "a"}, Latest: &models.MetricSnapshot{Likes: 2, Reshares: 1, Replies: 1}},
		{Post: models.Post{ID: "b"}},
	}

	rec := ts.do(http.MethodGet, "/api/posts/recent?limit=500", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.posts.lastLimit != maxListLimit {
		t.Errorf("expected limit capped at %d, got %d", maxListLimit, ts.posts.lastLimit)
	}

	var resp struct {
		Posts []struct {
			ID    string   `json:"id"`
			Score *float64 `json:"score"`
		} `json:"posts"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 || resp.Posts[0].Score == nil || *resp.Posts[0].Score != 7 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Posts[1].Score != nil {
		t.Error("unmetered posts carry no score")
	}

	if rec := ts.do(http.MethodGet, "/api/posts/recent?limit=abc", "", false); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPost, "/api/posts/recent", "", false); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestTopPostsDefaultLimit(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(http.MethodGet, "/api/posts/top", "", false); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.posts.lastLimit != 5 {
		t.Errorf("expected default top limit 5, got %d", ts.posts.lastLimit)
	}
}

func TestInferenceLogFilters(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/admin/inference-logs?operation=reply&status=error&since=2h&limit=10", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	q := ts.inference.query
	if q.Operation != "reply" || q.Status != "error" || q.Limit != 10 || q.Since == nil {
		t.Errorf("unexpected query %+v", q)
	}
	if d := time.Since(*q.Since); d < 2*time.Hour || d > 2*time.Hour+time.Minute {
		t.Errorf("expected since about 2h ago, got %v", d)
	}

	if rec := ts.do(http.MethodGet, "/api/admin/inference-logs/stats?since=yesterday", "", true); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid since, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/admin/inference-logs/stats", "", true); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if d := time.Since(ts.inference.since); d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("expected default 24h window, got %v", d)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodOptions, "/api/admin/post-now", "", false)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}
}
