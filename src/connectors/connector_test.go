package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"tradevault/src/model"
)

func newSimTestConnector(baseURL string) *SimulationConnector {
	c := NewSimulationConnector()
	c.http.SetBaseURL(baseURL)
	return c
}

// TestSimulationConnectorFillsAtMarketPrice verifies a simulated order
// fills fully at the public ticker price.
func TestSimulationConnectorFillsAtMarketPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("unexpected symbol %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"60000.50"}`)
	}))
	defer server.Close()

	c := newSimTestConnector(server.URL)

	result, err := c.PlaceOrder(context.Background(), "BTCUSDT", "buy", decimal.RequireFromString("0.5"), "tv-test")
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if !result.ExecutedQty.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("executed qty = %s", result.ExecutedQty)
	}
	if !result.AvgPrice.Equal(decimal.RequireFromString("60000.50")) {
		t.Fatalf("avg price = %s", result.AvgPrice)
	}
	if !result.FullyFilled {
		t.Fatalf("expected fully filled")
	}
	if !strings.HasPrefix(result.ExchangeRef, "sim-") {
		t.Fatalf("exchange ref = %s", result.ExchangeRef)
	}
}

// TestSimulationConnectorTickerFailure surfaces upstream HTTP errors.
func TestSimulationConnectorTickerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newSimTestConnector(server.URL)

	if _, err := c.PlaceOrder(context.Background(), "BTCUSDT", "buy", decimal.NewFromInt(1), "tv-test"); err == nil {
		t.Fatalf("expected error on HTTP 500")
	}
}

// TestClassifyBinanceError splits rejections from transient failures.
func TestClassifyBinanceError(t *testing.T) {
	rejected := classifyBinanceError(&common.APIError{Code: -2010, Message: "Account has insufficient balance"})
	if !IsTerminal(rejected) {
		t.Fatalf("expected -2010 to be terminal, got %v", rejected)
	}

	rateLimited := classifyBinanceError(&common.APIError{Code: -1003, Message: "Too many requests"})
	if IsTerminal(rateLimited) {
		t.Fatalf("expected -1003 to stay retryable")
	}
	if !strings.Contains(strings.ToLower(rateLimited.Error()), "rate limit") {
		t.Fatalf("transient error should mention rate limit: %v", rateLimited)
	}

	transport := classifyBinanceError(fmt.Errorf("connection reset by peer"))
	if IsTerminal(transport) {
		t.Fatalf("transport errors must stay retryable")
	}
}

// TestForAccount routes accounts to the right connector.
func TestForAccount(t *testing.T) {
	sim := &model.ExchangeAccount{ExchangeType: model.ExchangeTypeBinance, Simulation: true}
	c, err := ForAccount(sim, "", "")
	if err != nil {
		t.Fatalf("ForAccount simulation: %v", err)
	}
	if _, ok := c.(*SimulationConnector); !ok {
		t.Fatalf("simulation account got %T", c)
	}

	live := &model.ExchangeAccount{ExchangeType: model.ExchangeTypeBinance, Simulation: false}
	c, err = ForAccount(live, "k", "s")
	if err != nil {
		t.Fatalf("ForAccount binance: %v", err)
	}
	if _, ok := c.(*BinanceConnector); !ok {
		t.Fatalf("binance account got %T", c)
	}

	unknown := &model.ExchangeAccount{ExchangeType: "kraken"}
	if _, err := ForAccount(unknown, "k", "s"); err == nil {
		t.Fatalf("expected error for unsupported exchange")
	}
}

func TestPriceFeedCache(t *testing.T) {
	feed := NewPriceFeed([]string{"BTCUSDT"})

	if _, ok := feed.LastPrice("BTCUSDT"); ok {
		t.Fatalf("empty feed should have no price")
	}

	feed.mu.Lock()
	feed.prices["BTCUSDT"] = decimal.NewFromInt(60000)
	feed.mu.Unlock()

	price, ok := feed.LastPrice("btcusdt")
	if !ok || !price.Equal(decimal.NewFromInt(60000)) {
		t.Fatalf("cached price lookup failed: %s %v", price, ok)
	}

	if got := feed.streamURL(); !strings.Contains(got, "btcusdt@miniTicker") {
		t.Fatalf("stream url = %s", got)
	}
}
