package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  attempts,
	}
}

func TestBackoff_SucceedsAfterFailures(t *testing.T) {
	b := NewBackoff(fastConfig(5))

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoff_ReturnsLastError(t *testing.T) {
	b := NewBackoff(fastConfig(3))

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		return errors.New("still down")
	})

	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestBackoff_PredicateStopsEarly(t *testing.T) {
	b := NewBackoff(fastConfig(5))
	permanent := errors.New("permanent")

	calls := 0
	err := b.RetryWithPredicate(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestBackoff_OnRetryHook(t *testing.T) {
	b := NewBackoff(fastConfig(3))

	var attempts []int
	b.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
		assert.Positive(t, delay)
	}

	_ = b.Retry(context.Background(), func() error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestBackoff_ContextCancelled(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2,
		MaxAttempts:  3,
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.OnRetry = func(int, error, time.Duration) { cancel() }

	err := b.Retry(ctx, func() error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff_DelayGrowsAndCaps(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		MaxAttempts:  10,
	})

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(8))
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		MaxAttempts:  5,
		Jitter:       true,
	})

	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestNewBackoff_ClampsConfig(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	calls := 0
	_ = b.Retry(context.Background(), func() error { calls++; return errors.New("x") })
	assert.Equal(t, 1, calls)
}
