package connectors

import (
	"context"
	"fmt"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/builder"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradevault/src/model"
)

// GoexConnector covers the exchanges we reach through the goex
// multi-exchange client, currently OKX and Huobi spot.
type GoexConnector struct {
	exchangeType string
	api          goex.API
}

func goexExchangeName(exchangeType string) (string, error) {
	switch exchangeType {
	case model.ExchangeTypeOKX:
		return goex.OKEX, nil
	case model.ExchangeTypeHuobi:
		return goex.HUOBI_PRO, nil
	default:
		return "", fmt.Errorf("exchange %s not supported by goex connector", exchangeType)
	}
}

func NewGoexConnector(exchangeType, apiKey, apiSecret string) (*GoexConnector, error) {
	exName, err := goexExchangeName(exchangeType)
	if err != nil {
		return nil, err
	}

	api := builder.DefaultAPIBuilder.
		APIKey(apiKey).
		APISecretkey(apiSecret).
		Build(exName)

	return &GoexConnector{exchangeType: exchangeType, api: api}, nil
}

func (c *GoexConnector) pair(symbol string) goex.CurrencyPair {
	base, quote := model.SplitSymbol(symbol)
	return goex.NewCurrencyPair2(base + "_" + quote)
}

func (c *GoexConnector) PlaceOrder(
	ctx context.Context,
	symbol string,
	side string,
	quantity decimal.Decimal,
	clientOrderID string,
) (*ExecutionResult, error) {

	pair := c.pair(symbol)

	ticker, err := c.api.GetTicker(pair)
	if err != nil {
		return nil, err
	}
	price := decimal.NewFromFloat(ticker.Last)

	logger.WithFields(map[string]interface{}{
		"connector": c.exchangeType,
		"symbol":    symbol,
		"side":      side,
		"qty":       quantity.String(),
		"price":     price.String(),
	}).Info("placing market order")

	var order *goex.Order
	if side == "sell" {
		order, err = c.api.MarketSell(quantity.String(), price.String(), pair)
	} else {
		order, err = c.api.MarketBuy(quantity.String(), price.String(), pair)
	}
	if err != nil {
		return nil, err
	}

	executedQty := decimal.NewFromFloat(order.DealAmount)
	avgPrice := decimal.NewFromFloat(order.AvgPrice)
	if avgPrice.IsZero() {
		avgPrice = price
	}

	ref := order.OrderID2
	if ref == "" {
		ref = order.Cid
	}

	return &ExecutionResult{
		ExecutedQty: executedQty,
		AvgPrice:    avgPrice,
		ExchangeRef: ref,
		FullyFilled: order.Status == goex.ORDER_FINISH,
	}, nil
}

func (c *GoexConnector) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ticker, err := c.api.GetTicker(c.pair(symbol))
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(ticker.Last), nil
}

func (c *GoexConnector) FetchBalances(ctx context.Context) (map[string]AssetBalance, error) {
	account, err := c.api.GetAccount()
	if err != nil {
		return nil, err
	}

	balances := make(map[string]AssetBalance, len(account.SubAccounts))
	for currency, sub := range account.SubAccounts {
		free := decimal.NewFromFloat(sub.Amount)
		locked := decimal.NewFromFloat(sub.ForzenAmount)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances[currency.Symbol] = AssetBalance{Free: free, Locked: locked}
	}

	return balances, nil
}
