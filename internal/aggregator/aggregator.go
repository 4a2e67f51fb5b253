// Package aggregator gathers market and peer signals into the context bundles
// handed to the generation gateway.
package aggregator

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/STRATINT/echoloop/internal/models"
)

// HeatedThreshold is the trending count at or above which the market is labelled heated.
const HeatedThreshold = 7

// symbolPattern matches referenced symbols such as $DPEP or #BTC.
var symbolPattern = regexp.MustCompile(`[$#]([A-Z]{2,6})\b`)

// MarketSource provides trending coins and notable price moves.
type MarketSource interface {
	FetchTrending(ctx context.Context, limit int) ([]models.TrendingCoin, error)
	FetchTopMovers(ctx context.Context, limit int) ([]models.MarketMove, error)
}

// PeerSource provides recent posts of tracked peer accounts.
type PeerSource interface {
	FetchUserTweets(ctx context.Context, handle string, count int) ([]models.PeerPost, error)
}

// Config tunes how much of each source is gathered.
type Config struct {
	TrendingLimit   int
	MoversLimit     int
	PeerAccounts    []string
	PeerPostsEach   int
	PeerMaxAge      time.Duration
	SnippetLimit    int
	FreshnessWindow time.Duration
}

// DefaultConfig returns the default gathering limits.
func DefaultConfig() Config {
	return Config{
		TrendingLimit:   10,
		MoversLimit:     5,
		PeerPostsEach:   3,
		PeerMaxAge:      24 * time.Hour,
		SnippetLimit:    3,
		FreshnessWindow: DefaultFreshnessWindow,
	}
}

// Aggregator collects context for generation. Every source is optional: a
// failing source contributes nothing and is logged.
type Aggregator struct {
	market    MarketSource
	peers     PeerSource
	freshness *FreshnessTracker
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an aggregator that filters symbols through freshness.
func New(market MarketSource, peers PeerSource, freshness *FreshnessTracker, cfg Config, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		market:    market,
		peers:     peers,
		freshness: freshness,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// GatherTweetContext fetches trending coins, market moves and peer activity
// concurrently. It never fails; missing sources yield empty slices.
func (a *Aggregator) GatherTweetContext(ctx context.Context) models.TweetContext {
	var out models.TweetContext

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.TrendingCoins = a.freshTrending(a.fetchTrending(gctx))
		return nil
	})
	g.Go(func() error {
		out.MarketEvents = a.freshMoves(a.fetchMovers(gctx))
		return nil
	})
	g.Go(func() error {
		out.PeerActivity = a.fetchPeerActivity(gctx)
		return nil
	})
	_ = g.Wait()

	a.logger.Debug("gathered tweet context",
		"trending", len(out.TrendingCoins),
		"market_events", len(out.MarketEvents),
		"peer_posts", len(out.PeerActivity))
	return out
}

// GatherReplyContext bundles the fresh symbols referenced in originalText with
// trending coins and peer snippets.
func (a *Aggregator) GatherReplyContext(ctx context.Context, originalText string, mention models.Mention) models.ReplyContext {
	out := models.ReplyContext{Mention: mention}

	seen := make(map[string]bool)
	for _, sym := range ExtractSymbols(originalText) {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		if a.freshness.IsFresh(sym) {
			out.Symbols = append(out.Symbols, sym)
		}
	}

	var peers []models.PeerPost
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.TrendingCoins = a.freshTrending(a.fetchTrending(gctx))
		return nil
	})
	g.Go(func() error {
		peers = a.fetchPeerActivity(gctx)
		return nil
	})
	_ = g.Wait()

	for _, p := range peers {
		if len(out.PeerSnippets) == a.cfg.SnippetLimit {
			break
		}
		out.PeerSnippets = append(out.PeerSnippets, "@"+p.Handle+": "+p.Text)
	}
	return out
}

// GatherTrendSummaryContext labels the market from the number of trending coins.
func (a *Aggregator) GatherTrendSummaryContext(ctx context.Context) models.TrendSummaryContext {
	var (
		trending []models.TrendingCoin
		moves    []models.MarketMove
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		trending = a.fetchTrending(gctx)
		return nil
	})
	g.Go(func() error {
		moves = a.fetchMovers(gctx)
		return nil
	})
	_ = g.Wait()

	return models.TrendSummaryContext{
		Condition:     ConditionFor(len(trending)),
		TrendingCount: len(trending),
		TrendingCoins: trending,
		MarketEvents:  moves,
	}
}

// ConditionFor maps a trending count to a market condition label.
func ConditionFor(trendingCount int) models.MarketCondition {
	if trendingCount >= HeatedThreshold {
		return models.MarketHeated
	}
	return models.MarketCalm
}

// ExtractSymbols returns the symbols referenced as $XYZ or #XYZ, in order.
func ExtractSymbols(text string) []string {
	matches := symbolPattern.FindAllStringSubmatch(text, -1)
	symbols := make([]string, 0, len(matches))
	for _, m := range matches {
		symbols = append(symbols, m[1])
	}
	return symbols
}

func (a *Aggregator) fetchTrending(ctx context.Context) []models.TrendingCoin {
	if a.market == nil {
		return nil
	}
	coins, err := a.market.FetchTrending(ctx, a.cfg.TrendingLimit)
	if err != nil {
		a.logger.Warn("trending source unavailable", "error", err)
		return nil
	}
	return coins
}

func (a *Aggregator) fetchMovers(ctx context.Context) []models.MarketMove {
	if a.market == nil {
		return nil
	}
	moves, err := a.market.FetchTopMovers(ctx, a.cfg.MoversLimit)
	if err != nil {
		a.logger.Warn("market events source unavailable", "error", err)
		return nil
	}
	return moves
}

func (a *Aggregator) fetchPeerActivity(ctx context.Context) []models.PeerPost {
	if a.peers == nil || len(a.cfg.PeerAccounts) == 0 {
		return nil
	}

	cutoff := a.now().Add(-a.cfg.PeerMaxAge)
	var posts []models.PeerPost
	for _, handle := range a.cfg.PeerAccounts {
		recent, err := a.peers.FetchUserTweets(ctx, handle, a.cfg.PeerPostsEach)
		if err != nil {
			a.logger.Warn("peer activity unavailable", "handle", handle, "error", err)
			continue
		}
		for _, p := range recent {
			if a.cfg.PeerMaxAge > 0 && !p.CreatedAt.IsZero() && p.CreatedAt.Before(cutoff) {
				continue
			}
			posts = append(posts, p)
		}
	}
	return posts
}

func (a *Aggregator) freshTrending(coins []models.TrendingCoin) []models.TrendingCoin {
	var fresh []models.TrendingCoin
	for _, c := range coins {
		if a.freshness.IsFresh(c.Symbol) {
			fresh = append(fresh, c)
		}
	}
	return fresh
}

func (a *Aggregator) freshMoves(moves []models.MarketMove) []models.MarketMove {
	var fresh []models.MarketMove
	for _, m := range moves {
		if a.freshness.IsFresh(m.Symbol) {
			fresh = append(fresh, m)
		}
	}
	return fresh
}
