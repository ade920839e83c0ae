package connectors

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradevault/src/model"
)

// ExecutionResult is what an exchange reports back for a placed order.
type ExecutionResult struct {
	ExecutedQty decimal.Decimal
	AvgPrice    decimal.Decimal

	// ExchangeRef is the exchange-side order id for audit trails.
	ExchangeRef string

	FullyFilled bool
}

// AssetBalance is one asset row from an exchange account snapshot.
type AssetBalance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// ExchangeConnector is the port the execution worker drives. It may
// fail with transient errors (network, timeout, rate limit), which the
// retry helper handles, or terminal ones (see TerminalError), which
// fail the job immediately.
type ExchangeConnector interface {
	// PlaceOrder submits a market order and reports the execution.
	PlaceOrder(ctx context.Context, symbol string, side string, quantity decimal.Decimal, clientOrderID string) (*ExecutionResult, error)

	// GetPrice returns the current market price for a symbol.
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// FetchBalances returns the account's balance snapshot per asset.
	FetchBalances(ctx context.Context) (map[string]AssetBalance, error)
}

// ForAccount builds the right connector for an exchange account.
// Simulation accounts always get the simulation connector, regardless
// of their exchange type.
func ForAccount(account *model.ExchangeAccount, apiKey, apiSecret string) (ExchangeConnector, error) {
	if account.Simulation {
		return NewSimulationConnector(), nil
	}

	switch account.ExchangeType {
	case model.ExchangeTypeBinance:
		return NewBinanceConnector(apiKey, apiSecret), nil
	case model.ExchangeTypeOKX, model.ExchangeTypeHuobi:
		return NewGoexConnector(account.ExchangeType, apiKey, apiSecret)
	default:
		return nil, fmt.Errorf("exchange %s not supported", account.ExchangeType)
	}
}
