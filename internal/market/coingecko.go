// Package market fetches trending coins and notable price moves from the
// CoinGecko public API.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/models"
)

const (
	serviceName = "coingecko"

	// moversUniverse is how many coins by market cap are scanned for movers.
	moversUniverse = 100
)

// BreakerConfig tunes the circuit breaker in front of the API.
type BreakerConfig struct {
	FailureThreshold uint
	FailureWindow    uint
	Delay            time.Duration
	SuccessThreshold uint
}

// DefaultBreakerConfig trips after 3 failures in the last 5 calls and probes
// again after a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		FailureWindow:    5,
		Delay:            time.Minute,
		SuccessThreshold: 1,
	}
}

// Client is a CoinGecko API client guarded by a circuit breaker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker[any]
	logger     *slog.Logger
}

// NewClient creates a market-data client.
func NewClient(baseURL, apiKey string, breaker BreakerConfig, logger *slog.Logger) *Client {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(breaker.FailureThreshold, breaker.FailureWindow).
		WithDelay(breaker.Delay).
		WithSuccessThreshold(breaker.SuccessThreshold).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.Warn("market data circuit breaker state change",
				"from_state", stateName(event.OldState),
				"to_state", stateName(event.NewState))
		}).
		Build()

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: cb,
		logger:  logger,
	}
}

type trendingResponse struct {
	Coins []struct {
		Item struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Symbol        string `json:"symbol"`
			MarketCapRank int    `json:"market_cap_rank"`
			Score         int    `json:"score"`
		} `json:"item"`
	} `json:"coins"`
}

type marketEntry struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	Symbol                   string   `json:"symbol"`
	CurrentPrice             float64  `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// FetchTrending returns up to limit trending coins in the API's trending order.
func (c *Client) FetchTrending(ctx context.Context, limit int) ([]models.TrendingCoin, error) {
	var resp trendingResponse
	if err := c.get(ctx, "fetch trending", "/search/trending", nil, &resp); err != nil {
		return nil, err
	}

	coins := make([]models.TrendingCoin, 0, len(resp.Coins))
	for i, entry := range resp.Coins {
		if entry.Item.Symbol == "" {
			continue
		}
		coins = append(coins, models.TrendingCoin{
			Name:   entry.Item.Name,
			Symbol: models.NormalizeSymbol(entry.Item.Symbol),
			Rank:   i + 1,
		})
		if limit > 0 && len(coins) == limit {
			break
		}
	}
	return coins, nil
}

// FetchTopMovers returns the coins with the largest absolute 24h change
// among the top coins by market cap.
func (c *Client) FetchTopMovers(ctx context.Context, limit int) ([]models.MarketMove, error) {
	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("order", "market_cap_desc")
	query.Set("per_page", fmt.Sprint(moversUniverse))
	query.Set("page", "1")
	query.Set("price_change_percentage", "24h")

	var entries []marketEntry
	if err := c.get(ctx, "fetch top movers", "/coins/markets", query, &entries); err != nil {
		return nil, err
	}

	moves := make([]models.MarketMove, 0, len(entries))
	for _, e := range entries {
		if e.PriceChangePercentage24h == nil {
			continue
		}
		moves = append(moves, models.MarketMove{
			Name:          e.Name,
			Symbol:        models.NormalizeSymbol(e.Symbol),
			PriceUSD:      e.CurrentPrice,
			ChangePercent: *e.PriceChangePercentage24h,
		})
	}

	sort.SliceStable(moves, func(i, j int) bool {
		return math.Abs(moves[i].ChangePercent) > math.Abs(moves[j].ChangePercent)
	})
	if limit > 0 && len(moves) > limit {
		moves = moves[:limit]
	}
	return moves, nil
}

// get runs one request through the circuit breaker. An open breaker fails
// fast with a TransportError wrapping circuitbreaker.ErrOpen.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	_, err := failsafe.With(c.breaker).WithContext(ctx).Get(func() (any, error) {
		return nil, c.doGet(ctx, op, path, query, out)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return apperrors.Transport(serviceName, op, 0, err)
	}
	return err
}

func (c *Client) doGet(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transport(serviceName, op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.Transport(serviceName, op, resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transport(serviceName, op, resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerOpen reports whether calls are currently being rejected.
func (c *Client) BreakerOpen() bool {
	return c.breaker.IsOpen()
}
