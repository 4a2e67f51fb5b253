// Package scheduler runs the recurring post, mention-reply and metrics jobs
// and owns the watchlist of posts awaiting their engagement check.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/echoloop/internal/engagement"
	"github.com/STRATINT/echoloop/internal/generation"
	"github.com/STRATINT/echoloop/internal/models"
)

// Store is the engagement store used by the orchestrator.
type Store interface {
	SavePost(ctx context.Context, post models.Post) error
	SaveMetricSnapshot(ctx context.Context, snapshot models.MetricSnapshot) error
	SaveAnalysis(ctx context.Context, analysis models.Analysis) error
	GetRecentOriginatedPostsWithMetrics(ctx context.Context, limit int) ([]models.PostWithMetrics, error)
	GetTopPerformingPosts(ctx context.Context, limit int) ([]models.PostWithMetrics, error)
}

// Publisher posts to and reads from the social platform.
type Publisher interface {
	PostTweet(ctx context.Context, text string) (string, error)
	Reply(ctx context.Context, parentID, text string) (string, error)
	FetchMentions(ctx context.Context, count int) ([]models.Mention, error)
	FetchMetrics(ctx context.Context, tweetID string) (models.EngagementCounts, error)
}

// Generator produces post text and post analyses.
type Generator interface {
	Generate(ctx context.Context, p generation.Prompt) (string, error)
	Analyze(ctx context.Context, p generation.AnalysisPrompt) (models.Analysis, error)
}

// ContextSource gathers the signals handed to the generator.
type ContextSource interface {
	GatherTweetContext(ctx context.Context) models.TweetContext
	GatherReplyContext(ctx context.Context, originalText string, mention models.Mention) models.ReplyContext
	GatherTrendSummaryContext(ctx context.Context) models.TrendSummaryContext
}

// Config holds job periods and batch sizes.
type Config struct {
	PostInterval     time.Duration
	MentionInterval  time.Duration
	MetricsInterval  time.Duration
	MentionWindow    time.Duration
	MentionBatchSize int
	WatchlistCap     int
	RecentSample     int
	TopSample        int
	// SelfUserID is the bot's own account; its mentions are never answered.
	SelfUserID string
}

// DefaultConfig returns the default schedule.
func DefaultConfig() Config {
	return Config{
		PostInterval:     4 * time.Hour,
		MentionInterval:  15 * time.Minute,
		MetricsInterval:  3 * time.Hour,
		MentionWindow:    time.Hour,
		MentionBatchSize: 10,
		WatchlistCap:     DefaultWatchlistCap,
		RecentSample:     engagement.DefaultRecentSample,
		TopSample:        engagement.DefaultTopSample,
	}
}

// withDefaults replaces non-positive periods and sizes with their defaults
// and names the fields it replaced.
func (c Config) withDefaults() (Config, []string) {
	def := DefaultConfig()
	var replaced []string

	durations := []struct {
		name string
		v    *time.Duration
		def  time.Duration
	}{
		{"post_interval", &c.PostInterval, def.PostInterval},
		{"mention_interval", &c.MentionInterval, def.MentionInterval},
		{"metrics_interval", &c.MetricsInterval, def.MetricsInterval},
		{"mention_window", &c.MentionWindow, def.MentionWindow},
	}
	for _, d := range durations {
		if *d.v <= 0 {
			*d.v = d.def
			replaced = append(replaced, d.name)
		}
	}

	sizes := []struct {
		name string
		v    *int
		def  int
	}{
		{"mention_batch_size", &c.MentionBatchSize, def.MentionBatchSize},
		{"watchlist_cap", &c.WatchlistCap, def.WatchlistCap},
		{"recent_sample", &c.RecentSample, def.RecentSample},
		{"top_sample", &c.TopSample, def.TopSample},
	}
	for _, n := range sizes {
		if *n.v <= 0 {
			*n.v = n.def
			replaced = append(replaced, n.name)
		}
	}
	return c, replaced
}

// Deps are the collaborators of the orchestrator. Metrics and Activity may be nil.
type Deps struct {
	Store      Store
	Publisher  Publisher
	Generator  Generator
	Aggregator ContextSource
	Metrics    Recorder
	Activity   ActivityLog
}

// Orchestrator drives the post, mention and metrics jobs. All mutable state
// is owned by the instance and created empty.
type Orchestrator struct {
	store      Store
	publisher  Publisher
	generator  Generator
	aggregator ContextSource
	metrics    Recorder
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time

	watchlist *Watchlist
	jobs      *jobRunner

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	insight *models.Insight
}

// New creates an orchestrator with an empty watchlist. Jobs are not started.
// Non-positive periods and sizes in cfg fall back to DefaultConfig.
func New(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	cfg, replaced := cfg.withDefaults()
	if len(replaced) > 0 {
		logger.Warn("non-positive scheduler settings replaced by defaults", "fields", replaced)
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}

	o := &Orchestrator{
		store:      deps.Store,
		publisher:  deps.Publisher,
		generator:  deps.Generator,
		aggregator: deps.Aggregator,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		watchlist:  NewWatchlist(cfg.WatchlistCap),
	}
	o.jobs = newJobRunner(logger, metrics, deps.Activity, func() time.Time { return o.now() }, JobPost, JobMentions, JobMetrics, JobManual)
	return o
}

// StartAllJobs starts the three recurring jobs. Post generation and the
// mention check also run once immediately. Calling it while running is a no-op.
func (o *Orchestrator) StartAllJobs(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.logger.Debug("scheduler already running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.logger.Info("starting scheduler",
		"post_interval", o.cfg.PostInterval,
		"mention_interval", o.cfg.MentionInterval,
		"metrics_interval", o.cfg.MetricsInterval)

	o.wg.Add(3)
	go o.loop(loopCtx, JobPost, o.cfg.PostInterval, true, func(ctx context.Context) {
		_ = o.PostScheduledTweet(ctx)
	})
	go o.loop(loopCtx, JobMentions, o.cfg.MentionInterval, true, func(ctx context.Context) {
		_, _ = o.CheckAndReplyToMentions(ctx)
	})
	go o.loop(loopCtx, JobMetrics, o.cfg.MetricsInterval, false, func(ctx context.Context) {
		_, _ = o.TrackTweetMetrics(ctx)
	})
}

// StopAllJobs cancels all future ticks. An action already executing runs to
// completion. Calling it when nothing is running is a no-op.
func (o *Orchestrator) StopAllJobs() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel == nil {
		return
	}
	o.cancel()
	o.cancel = nil
	o.logger.Info("scheduler stopped")
}

// Wait blocks until every job loop and in-flight action has returned, or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the recurring jobs are scheduled.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel != nil
}

// loop runs action every interval until ctx is cancelled. Actions get a
// context detached from cancellation so stopping never aborts them midway.
func (o *Orchestrator) loop(ctx context.Context, name string, interval time.Duration, warmUp bool, action func(context.Context)) {
	defer o.wg.Done()

	actionCtx := context.WithoutCancel(ctx)
	if warmUp {
		action(actionCtx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			action(actionCtx)
		case <-ctx.Done():
			o.logger.Debug("job loop stopped", "job", name)
			return
		}
	}
}

// PostScheduledTweet gathers context, generates a post, publishes it, stores
// it and adds it to the watchlist. Nothing is published if any step before
// publishing fails.
func (o *Orchestrator) PostScheduledTweet(ctx context.Context) error {
	return o.jobs.run(ctx, JobPost, func(ctx context.Context) error {
		tweetCtx := o.aggregator.GatherTweetContext(ctx)
		prompt := generation.PostPrompt{Context: tweetCtx, Insight: o.currentInsight(ctx)}
		_, err := o.generateAndPublish(ctx, prompt, tweetCtx)
		return err
	})
}

// PostTrendSummary publishes a summary of the market mood. It shares the
// post job's running guard.
func (o *Orchestrator) PostTrendSummary(ctx context.Context) error {
	return o.jobs.run(ctx, JobPost, func(ctx context.Context) error {
		summary := o.aggregator.GatherTrendSummaryContext(ctx)
		_, err := o.generateAndPublish(ctx, generation.TrendSummaryPrompt{Context: summary}, summary)
		return err
	})
}

// PublishManual publishes operator-written text as-is after validating it.
func (o *Orchestrator) PublishManual(ctx context.Context, text string) (models.Post, error) {
	var post models.Post
	err := o.jobs.run(ctx, JobManual, func(ctx context.Context) error {
		if err := generation.ValidateText(text); err != nil {
			return err
		}
		p, err := o.publish(ctx, text, models.PostKindManual, "", nil)
		post = p
		return err
	})
	return post, err
}

func (o *Orchestrator) generateAndPublish(ctx context.Context, prompt generation.Prompt, bundle any) (models.Post, error) {
	contextJSON, err := json.Marshal(bundle)
	if err != nil {
		return models.Post{}, fmt.Errorf("failed to marshal generation context: %w", err)
	}

	text, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		return models.Post{}, fmt.Errorf("generate %s: %w", prompt.Template(), err)
	}

	return o.publish(ctx, text, models.PostKindGenerated, prompt.Template(), contextJSON)
}

// publish posts text, stores the post and watchlists it.
func (o *Orchestrator) publish(ctx context.Context, text string, kind models.PostKind, template string, contextJSON json.RawMessage) (models.Post, error) {
	id, err := o.publisher.PostTweet(ctx, text)
	if err != nil {
		return models.Post{}, fmt.Errorf("publish: %w", err)
	}
	o.metrics.IncPublished(string(kind))

	post := models.Post{
		ID:           id,
		Text:         text,
		CreatedAt:    o.now(),
		Kind:         kind,
		TemplateUsed: template,
		Context:      contextJSON,
	}
	if err := o.store.SavePost(ctx, post); err != nil {
		// Live but untracked: snapshots need the stored row.
		return post, fmt.Errorf("record published post %s: %w", id, err)
	}

	evicted := o.watchlist.Add(WatchlistEntry{
		PostID:    post.ID,
		Text:      post.Text,
		Kind:      post.Kind,
		CreatedAt: post.CreatedAt,
		Context:   contextJSON,
	})
	if len(evicted) > 0 {
		o.logger.Info("watchlist full, evicted oldest entries", "evicted", evicted)
	}
	o.metrics.SetWatchlistSize(o.watchlist.Len())

	o.logger.Info("post published", "post_id", post.ID, "kind", kind, "template", template)
	return post, nil
}

// CheckAndReplyToMentions answers recent mentions created within the
// mention window. A failing mention does not stop the others; failures are
// joined into the returned error. It returns the number of replies sent.
func (o *Orchestrator) CheckAndReplyToMentions(ctx context.Context) (int, error) {
	replied := 0
	err := o.jobs.run(ctx, JobMentions, func(ctx context.Context) error {
		mentions, err := o.publisher.FetchMentions(ctx, o.cfg.MentionBatchSize)
		if err != nil {
			return fmt.Errorf("fetch mentions: %w", err)
		}

		cutoff := o.now().Add(-o.cfg.MentionWindow)
		var errs []error
		for _, m := range mentions {
			if m.CreatedAt.Before(cutoff) {
				continue
			}
			if o.cfg.SelfUserID != "" && m.AuthorID == o.cfg.SelfUserID {
				continue
			}

			if err := o.replyTo(ctx, m); err != nil {
				o.logger.Warn("failed to reply to mention", "mention_id", m.ID, "author", m.AuthorHandle, "error", err)
				errs = append(errs, fmt.Errorf("mention %s: %w", m.ID, err))
				continue
			}
			replied++
		}

		o.logger.Info("mention check finished", "fetched", len(mentions), "replied", replied, "failed", len(errs))
		return errors.Join(errs...)
	})
	return replied, err
}

func (o *Orchestrator) replyTo(ctx context.Context, m models.Mention) error {
	replyCtx := o.aggregator.GatherReplyContext(ctx, m.Text, m)

	text, err := o.generator.Generate(ctx, generation.ReplyPrompt{Context: replyCtx})
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	id, err := o.publisher.Reply(ctx, m.ID, text)
	if err != nil {
		return fmt.Errorf("publish reply: %w", err)
	}
	o.metrics.IncPublished(string(models.PostKindReply))

	contextJSON, _ := json.Marshal(replyCtx)
	post := models.Post{
		ID:           id,
		Text:         text,
		CreatedAt:    o.now(),
		Kind:         models.PostKindReply,
		TemplateUsed: generation.TemplateReply,
		Context:      contextJSON,
	}
	if err := o.store.SavePost(ctx, post); err != nil {
		o.logger.Warn("reply published but not recorded", "reply_id", id, "mention_id", m.ID, "error", err)
	}

	o.logger.Info("replied to mention", "mention_id", m.ID, "reply_id", id)
	return nil
}

// TrackTweetMetrics processes every watchlist entry older than the metrics
// interval: fetch metrics, store a snapshot, analyse, store the analysis.
// Each processed entry is removed whatever the outcome. The insight is then
// recomputed. It returns the number of entries processed.
func (o *Orchestrator) TrackTweetMetrics(ctx context.Context) (int, error) {
	processed := 0
	err := o.jobs.run(ctx, JobMetrics, func(ctx context.Context) error {
		mature := o.watchlist.Mature(o.now(), o.cfg.MetricsInterval)

		var errs []error
		for _, entry := range mature {
			if err := o.trackEntry(ctx, entry); err != nil {
				o.logger.Warn("metrics tracking incomplete", "post_id", entry.PostID, "error", err)
				errs = append(errs, fmt.Errorf("post %s: %w", entry.PostID, err))
			}
			o.watchlist.Remove(entry.PostID)
			processed++
		}
		o.metrics.SetWatchlistSize(o.watchlist.Len())

		insight, err := o.refreshInsight(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("compute insight: %w", err))
		} else {
			o.logger.Info("engagement insight",
				"recent_posts", insight.RecentCount,
				"average_engagement", insight.AverageEngagement,
				"top_posts", len(insight.TopPosts),
				"emoji_pct", insight.Patterns.EmojiPercent,
				"question_pct", insight.Patterns.QuestionPercent,
				"avg_length", insight.Patterns.AverageLength)
		}

		o.logger.Info("metrics tracking finished", "processed", processed, "remaining", o.watchlist.Len())
		return errors.Join(errs...)
	})
	return processed, err
}

func (o *Orchestrator) trackEntry(ctx context.Context, entry WatchlistEntry) error {
	counts, err := o.publisher.FetchMetrics(ctx, entry.PostID)
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}

	snapshot := models.MetricSnapshot{
		PostID:      entry.PostID,
		CollectedAt: o.now(),
		Likes:       counts.Likes,
		Reshares:    counts.Reshares,
		Replies:     counts.Replies,
		Impressions: counts.Impressions,
	}

	var errs []error
	if err := o.store.SaveMetricSnapshot(ctx, snapshot); err != nil {
		errs = append(errs, fmt.Errorf("save snapshot: %w", err))
	}

	analysis, err := o.generator.Analyze(ctx, generation.AnalysisPrompt{
		Post: models.Post{
			ID:        entry.PostID,
			Text:      entry.Text,
			Kind:      entry.Kind,
			CreatedAt: entry.CreatedAt,
			Context:   entry.Context,
		},
		Metrics: snapshot,
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("analyze: %w", err))
		return errors.Join(errs...)
	}

	if err := o.store.SaveAnalysis(ctx, analysis); err != nil {
		errs = append(errs, fmt.Errorf("save analysis: %w", err))
	}

	o.logger.Info("post metrics tracked",
		"post_id", entry.PostID,
		"likes", snapshot.Likes,
		"reshares", snapshot.Reshares,
		"replies", snapshot.Replies,
		"score", engagement.Score(&snapshot))
	return errors.Join(errs...)
}

// Insights recomputes the insight from the store.
func (o *Orchestrator) Insights(ctx context.Context) (models.Insight, error) {
	insight, err := o.refreshInsight(ctx)
	if err != nil {
		return models.Insight{}, err
	}
	return *insight, nil
}

// LastInsight returns the most recently computed insight, or nil.
func (o *Orchestrator) LastInsight() *models.Insight {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.insight
}

func (o *Orchestrator) refreshInsight(ctx context.Context) (*models.Insight, error) {
	recent, err := o.store.GetRecentOriginatedPostsWithMetrics(ctx, o.cfg.RecentSample)
	if err != nil {
		return nil, err
	}
	top, err := o.store.GetTopPerformingPosts(ctx, o.cfg.TopSample)
	if err != nil {
		return nil, err
	}

	insight := engagement.ComputeInsight(recent, top)

	o.mu.Lock()
	o.insight = &insight
	o.mu.Unlock()
	return &insight, nil
}

// currentInsight returns the cached insight, computing it on first use.
// It is advisory: failures are logged and yield nil.
func (o *Orchestrator) currentInsight(ctx context.Context) *models.Insight {
	if in := o.LastInsight(); in != nil {
		return in
	}
	in, err := o.refreshInsight(ctx)
	if err != nil {
		o.logger.Warn("insight unavailable, generating without it", "error", err)
		return nil
	}
	return in
}

// Status summarises the scheduler for the operational API.
type Status struct {
	Running       bool                 `json:"running"`
	Jobs          map[string]JobStatus `json:"jobs"`
	WatchlistSize int                  `json:"watchlist_size"`
	Watchlist     []WatchlistEntry     `json:"watchlist"`
	LastInsight   *models.Insight      `json:"last_insight,omitempty"`
}

// Status returns a snapshot of the scheduler state.
func (o *Orchestrator) Status() Status {
	entries := o.watchlist.Entries()
	return Status{
		Running:       o.Running(),
		Jobs:          o.jobs.status(),
		WatchlistSize: len(entries),
		Watchlist:     entries,
		LastInsight:   o.LastInsight(),
	}
}
