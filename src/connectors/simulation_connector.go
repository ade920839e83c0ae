package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const publicTickerBaseURL = "https://api.binance.com"

// SimulationConnector fills every order instantly at the current public
// market price without touching any exchange account. Simulation-mode
// accounts get this connector regardless of their exchange type, so the
// whole execution path can run without credentials.
type SimulationConnector struct {
	http *resty.Client
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func NewSimulationConnector() *SimulationConnector {
	return &SimulationConnector{
		http: resty.New().
			SetBaseURL(publicTickerBaseURL).
			SetTimeout(10 * time.Second),
	}
}

func (c *SimulationConnector) PlaceOrder(
	ctx context.Context,
	symbol string,
	side string,
	quantity decimal.Decimal,
	clientOrderID string,
) (*ExecutionResult, error) {

	price, err := c.GetPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"connector": "simulation",
		"symbol":    symbol,
		"side":      side,
		"qty":       quantity.String(),
		"price":     price.String(),
	}).Info("simulated fill at market price")

	return &ExecutionResult{
		ExecutedQty: quantity,
		AvgPrice:    price,
		ExchangeRef: "sim-" + uuid.NewString(),
		FullyFilled: true,
	}, nil
}

func (c *SimulationConnector) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var ticker tickerPriceResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&ticker).
		Get("/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, err
	}

	if resp.StatusCode() != 200 {
		return decimal.Zero, fmt.Errorf("ticker request HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	return decimal.NewFromString(ticker.Price)
}

// FetchBalances is empty for simulated accounts; their funds live in
// the vault ledger, not on any exchange.
func (c *SimulationConnector) FetchBalances(ctx context.Context) (map[string]AssetBalance, error) {
	return map[string]AssetBalance{}, nil
}
