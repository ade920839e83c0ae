package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradevault/src/model"
)

func TestParsePayloadJSON(t *testing.T) {
	raw := []byte(`{"id":"alert-1","symbol":"BINANCE:BTC/USDT","action":"BUY_SIGNAL","timeframe":"15m","price":"60000","quantity":"0.5"}`)

	signal := ParsePayload(raw)

	assert.Equal(t, "alert-1", signal.ExternalID)
	assert.Equal(t, "BINANCE:BTC/USDT", signal.SymbolRaw)
	assert.Equal(t, "BTCUSDT", signal.Symbol)
	assert.Equal(t, model.SignalActionBuy, signal.Action)
	assert.Equal(t, "15m", signal.Timeframe)
	assert.Equal(t, "60000", signal.Price.String())
	assert.Equal(t, "0.5", signal.Quantity.String())
}

func TestParsePayloadJSONSideAndTicker(t *testing.T) {
	raw := []byte(`{"ticker":"ethusdt.p","side":"sell","quantity":"1.25"}`)

	signal := ParsePayload(raw)

	assert.Equal(t, "ETHUSDT", signal.Symbol)
	assert.Equal(t, model.SignalActionSell, signal.Action)
}

func TestParsePayloadText(t *testing.T) {
	signal := ParsePayload([]byte("SELL BTC-USDT 0.25"))

	assert.Equal(t, model.SignalActionSell, signal.Action)
	assert.Equal(t, "BTCUSDT", signal.Symbol)
	assert.Equal(t, "0.25", signal.Quantity.String())
}

func TestParsePayloadUnparseable(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"garbage json", `{"symbol":`},
		{"missing symbol", `{"action":"buy"}`},
		{"single word", "hello"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signal := ParsePayload([]byte(tc.raw))
			assert.Equal(t, model.SignalActionUnknown, signal.Action)
		})
	}
}

func TestParsePayloadUnknownAction(t *testing.T) {
	signal := ParsePayload([]byte(`{"symbol":"BTCUSDT","action":"hold"}`))
	assert.Equal(t, model.SignalActionUnknown, signal.Action)
	assert.Equal(t, "BTCUSDT", signal.Symbol)
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"BTCUSDT", "BTCUSDT"},
		{"btc/usdt", "BTCUSDT"},
		{"BINANCE:ETHUSDT", "ETHUSDT"},
		{"SOL-USDT", "SOLUSDT"},
		{"BTCUSDT.P", "BTCUSDT"},
		{"ETHUSDTPERP", "ETHUSDT"},
		{" doge_usdt ", "DOGEUSDT"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeSymbol(tc.raw), "raw=%q", tc.raw)
	}
}
