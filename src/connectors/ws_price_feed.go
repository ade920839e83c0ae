package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const miniTickerStreamHost = "stream.binance.com:9443"

// PriceFeed keeps a live cache of last-traded prices from the public
// miniTicker websocket stream. The residue sweep reads prices from
// here so it never hammers the REST ticker while scanning open dust.
type PriceFeed struct {
	symbols []string

	mu     sync.RWMutex
	prices map[string]decimal.Decimal

	dialer *websocket.Dialer
}

type miniTickerEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol     string `json:"s"`
		ClosePrice string `json:"c"`
	} `json:"data"`
}

func NewPriceFeed(symbols []string) *PriceFeed {
	return &PriceFeed{
		symbols: symbols,
		prices:  make(map[string]decimal.Decimal),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

func (f *PriceFeed) streamURL() string {
	streams := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	return fmt.Sprintf("wss://%s/stream?streams=%s", miniTickerStreamHost, strings.Join(streams, "/"))
}

// Run consumes the stream until ctx is canceled, reconnecting with a
// short pause after any read or dial failure.
func (f *PriceFeed) Run(ctx context.Context) {
	for {
		if err := f.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("price feed disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (f *PriceFeed) consume(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.WithField("symbols", f.symbols).Info("price feed connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}

		var event miniTickerEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			continue
		}
		if event.Data.Symbol == "" {
			continue
		}

		price, err := decimal.NewFromString(event.Data.ClosePrice)
		if err != nil {
			continue
		}

		f.mu.Lock()
		f.prices[event.Data.Symbol] = price
		f.mu.Unlock()
	}
}

// LastPrice returns the most recent cached price for a symbol.
func (f *PriceFeed) LastPrice(symbol string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[strings.ToUpper(symbol)]
	return price, ok
}

// WaitForPrices blocks until every requested symbol has at least one
// cached price, or the timeout passes.
func (f *PriceFeed) WaitForPrices(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		missing := 0
		f.mu.RLock()
		for _, s := range f.symbols {
			if _, ok := f.prices[strings.ToUpper(s)]; !ok {
				missing++
			}
		}
		f.mu.RUnlock()

		if missing == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("price feed warm-up timed out with %d symbols missing", missing)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
