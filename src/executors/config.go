package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod time.Duration `envconfig:"LOOP_PERIOD" default:"5s"`

	// ReserveBufferPct is added on top of the reference price when
	// estimating the quote cost to reserve for a buy.
	ReserveBufferPct int64 `envconfig:"RESERVE_BUFFER_PCT" default:"1"`

	MaxRetries     int           `envconfig:"ORDER_MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"ORDER_RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay  time.Duration `envconfig:"ORDER_RETRY_MAX_DELAY" default:"30s"`

	SyncBalances bool `envconfig:"SYNC_BALANCES" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
