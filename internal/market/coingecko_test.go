package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "demo-key", DefaultBreakerConfig(), logging.Discard())
}

func TestFetchTrending(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/trending" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-cg-demo-api-key") != "demo-key" {
			t.Errorf("expected api key header")
		}
		w.Write([]byte(`{"coins":[
			{"item":{"id":"dogepepe","name":"DOGEPEPE","symbol":"dpep"}},
			{"item":{"id":"bitcoin","name":"Bitcoin","symbol":"btc"}},
			{"item":{"id":"nosym","name":"Nameless","symbol":""}},
			{"item":{"id":"ethereum","name":"Ethereum","symbol":"eth"}}
		]}`))
	})

	coins, err := client.FetchTrending(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchTrending returned error: %v", err)
	}
	if len(coins) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(coins))
	}
	if coins[0].Symbol != "DPEP" || coins[0].Rank != 1 || coins[0].Label() != "DOGEPEPE (DPEP)" {
		t.Errorf("unexpected first coin %+v", coins[0])
	}
}

func TestFetchTopMoversSortsByAbsoluteChange(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" || r.URL.Query().Get("vs_currency") != "usd" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`[
			{"name":"Bitcoin","symbol":"btc","current_price":65000,"price_change_percentage_24h":1.2},
			{"name":"Solana","symbol":"sol","current_price":150,"price_change_percentage_24h":-9.5},
			{"name":"Pepe","symbol":"pepe","current_price":0.00001,"price_change_percentage_24h":7.1},
			{"name":"Stale","symbol":"stl","current_price":1,"price_change_percentage_24h":null}
		]`))
	})

	moves, err := client.FetchTopMovers(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchTopMovers returned error: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("expected 2 moves, got %d", len(moves))
	}
	if moves[0].Symbol != "SOL" || moves[1].Symbol != "PEPE" {
		t.Errorf("unexpected order: %+v", moves)
	}
}

func TestRateLimitedIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":{"error_code":429}}`))
	})

	_, err := client.FetchTrending(context.Background(), 5)
	if !apperrors.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if apperrors.StatusCode(err) != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", apperrors.StatusCode(err))
	}
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := BreakerConfig{FailureThreshold: 2, FailureWindow: 2, Delay: time.Hour, SuccessThreshold: 1}
	client := NewClient(srv.URL, "", cfg, logging.Discard())

	for i := 0; i < 2; i++ {
		if _, err := client.FetchTrending(context.Background(), 5); err == nil {
			t.Fatal("expected error from failing upstream")
		}
	}
	if !client.BreakerOpen() {
		t.Fatal("expected breaker to be open after consecutive failures")
	}

	_, err := client.FetchTopMovers(context.Background(), 5)
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if !apperrors.IsTransport(err) {
		t.Fatalf("expected open breaker to surface as TransportError, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected upstream hit twice, got %d", got)
	}
}
