package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(func() (string, error) {
		calls++
		return "ok", nil
	}, Config{sleep: func(time.Duration) { t.Fatal("unexpected sleep") }})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	var waits []time.Duration
	calls := 0

	result, err := Do(func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	}, Config{
		MaxRetries: 3,
		BaseDelay:  1000 * time.Millisecond,
		sleep:      func(d time.Duration) { waits = append(waits, d) },
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
	require.Len(t, waits, 2)
	assert.Equal(t, 1000*time.Millisecond, waits[0])
	assert.Equal(t, 2000*time.Millisecond, waits[1])
}

// Three consecutive retryable failures with MaxRetries=3 must produce
// exactly two waits (1s, 2s) and then surface the last error. No wait
// after the final attempt.
func TestDoExhaustsRetries(t *testing.T) {
	var waits []time.Duration
	calls := 0
	lastErr := errors.New("request timeout (third)")

	_, err := Do(func() (struct{}, error) {
		calls++
		if calls < 3 {
			return struct{}{}, errors.New("request timeout")
		}
		return struct{}{}, lastErr
	}, Config{
		MaxRetries: 3,
		BaseDelay:  1000 * time.Millisecond,
		sleep:      func(d time.Duration) { waits = append(waits, d) },
	})

	require.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, calls)
	require.Len(t, waits, 2)
	assert.Equal(t, 1000*time.Millisecond, waits[0])
	assert.Equal(t, 2000*time.Millisecond, waits[1])
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	terminal := errors.New("order rejected: insufficient margin")

	_, err := Do(func() (struct{}, error) {
		calls++
		return struct{}{}, terminal
	}, Config{
		MaxRetries: 5,
		sleep:      func(time.Duration) { t.Fatal("unexpected sleep") },
	})

	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDoBackoffCappedAtMaxDelay(t *testing.T) {
	var waits []time.Duration

	_, err := Do(func() (struct{}, error) {
		return struct{}{}, errors.New("503 service unavailable")
	}, Config{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   3 * time.Second,
		sleep:      func(d time.Duration) { waits = append(waits, d) },
	})

	require.Error(t, err)
	require.Len(t, waits, 4)
	assert.Equal(t, 1*time.Second, waits[0])
	assert.Equal(t, 2*time.Second, waits[1])
	assert.Equal(t, 3*time.Second, waits[2])
	assert.Equal(t, 3*time.Second, waits[3])
}

func TestDoOnRetryObservesAttempts(t *testing.T) {
	var attempts []int
	var seen []error

	_, _ = Do(func() (struct{}, error) {
		return struct{}{}, errors.New("rate limit exceeded")
	}, Config{
		MaxRetries: 3,
		OnRetry: func(attempt int, err error) {
			attempts = append(attempts, attempt)
			seen = append(seen, err)
		},
		sleep: func(time.Duration) {},
	})

	assert.Equal(t, []int{1, 2}, attempts)
	require.Len(t, seen, 2)
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", errors.New("i/o Timeout"), true},
		{"rate limit", errors.New("Rate Limit hit"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"rejected", errors.New("order rejected"), false},
		{"nil", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err, DefaultRetryablePatterns))
		})
	}
}
