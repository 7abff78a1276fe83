package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig bounds an exponential retry loop. With Jitter each delay is
// spread by up to 25% either way, still capped at MaxDelay.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
	Jitter       bool
}

type Backoff struct {
	config BackoffConfig

	// OnRetry, when set, is called before each wait with the failed attempt
	// number, its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewBackoff clamps MaxAttempts and Multiplier to at least 1.
func NewBackoff(config BackoffConfig) *Backoff {
	config.MaxAttempts = max(config.MaxAttempts, 1)
	config.Multiplier = math.Max(config.Multiplier, 1)
	return &Backoff{config: config}
}

// Retry runs operation until it succeeds, attempts run out or ctx is done.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, nil)
}

// RetryWithPredicate is Retry that gives up on the first error retryable
// rejects. A nil retryable accepts every error.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, retryable func(error) bool) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		if attempt >= b.config.MaxAttempts || (retryable != nil && !retryable(err)) {
			return err
		}

		delay := b.Delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Delay is the wait that follows a failed attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	limit := float64(b.config.MaxDelay)
	d := math.Min(float64(b.config.InitialDelay)*math.Pow(b.config.Multiplier, float64(attempt-1)), limit)
	if b.config.Jitter {
		d = math.Min(d*(0.75+rand.Float64()*0.5), limit)
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
