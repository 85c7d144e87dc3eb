package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), FixedConfig(5, time.Millisecond), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), FixedConfig(4, time.Millisecond), func() error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "max retry attempts (4) exceeded")
	assert.Equal(t, 4, calls)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	fatal := errors.New("permission denied")
	cfg := FixedConfig(5, time.Millisecond)
	cfg.Retryable = func(err error) bool { return errors.Is(err, errTransient) }

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithLog_FixedDelayBetweenAttempts(t *testing.T) {
	var delays []time.Duration
	var attempts []int

	err := DoWithLog(context.Background(), FixedConfig(3, 5*time.Millisecond), "test", func() error {
		return errTransient
	}, func(attempt int, err error, nextDelay time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, nextDelay)
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "test: max retry attempts (3) exceeded")
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, delays)
}

func TestDoWithLog_ExponentialBackoffCapped(t *testing.T) {
	cfg := Config{
		MaxAttempts:   4,
		InitialDelay:  time.Millisecond,
		MaxDelay:      3 * time.Millisecond,
		BackoffFactor: 2.0,
	}

	var delays []time.Duration
	_ = DoWithLog(context.Background(), cfg, "", func() error {
		return errTransient
	}, func(_ int, _ error, nextDelay time.Duration) {
		delays = append(delays, nextDelay)
	})

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, delays)
}

func TestDo_ContextCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, FixedConfig(5, time.Hour), func() error {
		calls++
		cancel()
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
