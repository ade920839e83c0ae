package ingest

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"tradevault/src/model"
)

// ParsedSignal is the normalized form of one webhook payload.
type ParsedSignal struct {
	ExternalID      string
	SymbolRaw       string
	Symbol          string
	Action          string
	Timeframe       string
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	TargetAccountID uint
}

// signalPayload is the JSON shape chart alerts send. Everything is
// optional at the JSON level; the validator decides whether the result
// is structurally usable.
type signalPayload struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol" validate:"required"`
	Ticker    string          `json:"ticker"`
	Action    string          `json:"action"`
	Side      string          `json:"side"`
	Timeframe string          `json:"timeframe"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	AccountID uint            `json:"account_id"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParsePayload turns a raw webhook body into a ParsedSignal. It accepts
// a JSON object or a plain-text line ("BUY BTCUSDT 0.5"). Payloads that
// cannot be understood come back with ActionUnknown rather than an
// error: the event is still recorded, it just fans out no jobs.
func ParsePayload(raw []byte) ParsedSignal {
	text := strings.TrimSpace(string(raw))

	if strings.HasPrefix(text, "{") {
		return parseJSON(raw)
	}
	return parseText(text)
}

func parseJSON(raw []byte) ParsedSignal {
	var p signalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ParsedSignal{Action: model.SignalActionUnknown}
	}

	if p.Symbol == "" {
		p.Symbol = p.Ticker
	}
	if err := validate.Struct(p); err != nil {
		return ParsedSignal{Action: model.SignalActionUnknown}
	}

	action := p.Action
	if action == "" {
		action = p.Side
	}

	return ParsedSignal{
		ExternalID:      p.ID,
		SymbolRaw:       p.Symbol,
		Symbol:          NormalizeSymbol(p.Symbol),
		Action:          normalizeAction(action),
		Timeframe:       p.Timeframe,
		Price:           p.Price,
		Quantity:        p.Quantity,
		TargetAccountID: p.AccountID,
	}
}

// parseText handles the bare alert format "ACTION SYMBOL [QTY]".
func parseText(text string) ParsedSignal {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ParsedSignal{SymbolRaw: text, Action: model.SignalActionUnknown}
	}

	signal := ParsedSignal{
		SymbolRaw: fields[1],
		Symbol:    NormalizeSymbol(fields[1]),
		Action:    normalizeAction(fields[0]),
	}

	if len(fields) >= 3 {
		if qty, err := decimal.NewFromString(fields[2]); err == nil {
			signal.Quantity = qty
		}
	}

	return signal
}

func normalizeAction(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "buy", "buy_signal", "long":
		return model.SignalActionBuy
	case "sell", "sell_signal", "short", "close":
		return model.SignalActionSell
	default:
		return model.SignalActionUnknown
	}
}

// NormalizeSymbol upcases a raw ticker and strips exchange prefixes,
// separators and perpetual suffixes: "binance:btc/usdt.p" → "BTCUSDT".
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}

	s = strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)

	s = strings.TrimSuffix(s, ".P")
	s = strings.TrimSuffix(s, "PERP")
	s = strings.TrimSuffix(s, ".")

	return s
}
