package connectors

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
)

// Binance error codes that are worth retrying. Everything else coming
// back as an APIError is a terminal rejection.
var binanceTransientCodes = map[int64]bool{
	-1001: true, // DISCONNECTED
	-1003: true, // TOO_MANY_REQUESTS
	-1007: true, // TIMEOUT
	-1015: true, // TOO_MANY_ORDERS (rate limit)
	-1016: true, // SERVICE_SHUTTING_DOWN
}

// BinanceConnector executes orders on Binance spot through the
// official REST API client.
type BinanceConnector struct {
	client *binance.Client
}

func NewBinanceConnector(apiKey, apiSecret string) *BinanceConnector {
	return &BinanceConnector{
		client: binance.NewClient(apiKey, apiSecret),
	}
}

func (c *BinanceConnector) PlaceOrder(
	ctx context.Context,
	symbol string,
	side string,
	quantity decimal.Decimal,
	clientOrderID string,
) (*ExecutionResult, error) {

	orderSide := binance.SideTypeBuy
	if side == "sell" {
		orderSide = binance.SideTypeSell
	}

	logger.WithFields(map[string]interface{}{
		"connector": "binance",
		"symbol":    symbol,
		"side":      side,
		"qty":       quantity.String(),
	}).Info("placing market order")

	resp, err := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide).
		Type(binance.OrderTypeMarket).
		Quantity(quantity.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)

	if err != nil {
		return nil, classifyBinanceError(err)
	}

	executedQty, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return nil, fmt.Errorf("binance: parse executed quantity %q: %w", resp.ExecutedQuantity, err)
	}

	avgPrice, err := averageFillPrice(resp, executedQty)
	if err != nil {
		return nil, err
	}

	return &ExecutionResult{
		ExecutedQty: executedQty,
		AvgPrice:    avgPrice,
		ExchangeRef: strconv.FormatInt(resp.OrderID, 10),
		FullyFilled: resp.Status == binance.OrderStatusTypeFilled,
	}, nil
}

// averageFillPrice derives the volume-weighted price from the
// cumulative quote amount, falling back to the individual fills.
func averageFillPrice(resp *binance.CreateOrderResponse, executedQty decimal.Decimal) (decimal.Decimal, error) {
	if executedQty.IsZero() {
		return decimal.Zero, nil
	}

	if resp.CummulativeQuoteQuantity != "" {
		quote, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
		if err == nil && !quote.IsZero() {
			return quote.Div(executedQty), nil
		}
	}

	total := decimal.Zero
	for _, fill := range resp.Fills {
		price, err := decimal.NewFromString(fill.Price)
		if err != nil {
			return decimal.Zero, fmt.Errorf("binance: parse fill price %q: %w", fill.Price, err)
		}
		qty, err := decimal.NewFromString(fill.Quantity)
		if err != nil {
			return decimal.Zero, fmt.Errorf("binance: parse fill quantity %q: %w", fill.Quantity, err)
		}
		total = total.Add(price.Mul(qty))
	}

	return total.Div(executedQty), nil
}

func (c *BinanceConnector) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, classifyBinanceError(err)
	}
	if len(prices) == 0 {
		return decimal.Zero, NewTerminalError("", "no price for symbol "+symbol)
	}

	return decimal.NewFromString(prices[0].Price)
}

func (c *BinanceConnector) FetchBalances(ctx context.Context) (map[string]AssetBalance, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classifyBinanceError(err)
	}

	balances := make(map[string]AssetBalance, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			continue
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances[b.Asset] = AssetBalance{Free: free, Locked: locked}
	}

	return balances, nil
}

// classifyBinanceError splits API errors into transient ones (left
// as-is so the retry patterns match) and terminal rejections.
func classifyBinanceError(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		// transport-level failure, let the retry patterns decide
		return err
	}

	if binanceTransientCodes[apiErr.Code] {
		return fmt.Errorf("binance rate limit or timeout (%d): %s: %w", apiErr.Code, apiErr.Message, err)
	}

	return NewTerminalError(strconv.FormatInt(apiErr.Code, 10), apiErr.Message)
}
