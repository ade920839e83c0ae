package residue

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AccountID uint   `envconfig:"ACCOUNT_ID" default:"0"`
	TradeMode string `envconfig:"TRADE_MODE" default:"simulation"`

	// PriceWarmup bounds how long the sweep waits for the websocket
	// feed to deliver a price for every open symbol.
	PriceWarmup time.Duration `envconfig:"PRICE_WARMUP" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
