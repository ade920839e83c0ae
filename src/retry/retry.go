package retry

import (
	"strings"
	"time"

	"github.com/jpillora/backoff"
	logger "github.com/sirupsen/logrus"
)

// DefaultRetryablePatterns matches the transient failures exchanges
// commonly produce. Matching is case-insensitive substring.
var DefaultRetryablePatterns = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"econnreset",
	"econnrefused",
	"network",
	"rate limit",
	"too many requests",
	"429",
	"502",
	"503",
	"504",
	"temporarily unavailable",
	"eof",
}

// Config controls the retry loop. Zero values fall back to the
// defaults below.
type Config struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryablePatterns []string

	// OnRetry observes each retry before the wait. It must not alter
	// control flow; it exists for logging and metrics only.
	OnRetry func(attempt int, err error)

	// sleep is injectable for tests.
	sleep func(time.Duration)
}

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

func (c *Config) fill() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.RetryablePatterns == nil {
		c.RetryablePatterns = DefaultRetryablePatterns
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
}

// Retryable classifies an error against the configured pattern set.
func Retryable(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Do runs op up to cfg.MaxRetries times. On a retryable failure before
// the last attempt it waits min(base*2^(attempt-1), max) and retries.
// Non-retryable failures and the final attempt's failure return
// immediately; there is never a wait after the last attempt.
//
// There is no cancellation signal: a retry sequence runs to completion
// or exhaustion. Callers needing a deadline wrap Do externally.
func Do[T any](op func() (T, error), cfg Config) (T, error) {
	cfg.fill()

	b := &backoff.Backoff{
		Min:    cfg.BaseDelay,
		Max:    cfg.MaxDelay,
		Factor: 2,
		Jitter: false,
	}

	var result T
	var err error

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		result, err = op()
		if err == nil {
			return result, nil
		}

		if !Retryable(err, cfg.RetryablePatterns) {
			return result, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		delay := b.Duration()
		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		}).WithError(err).Warn("retryable error, backing off")

		cfg.sleep(delay)
	}

	return result, err
}
