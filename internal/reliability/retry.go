package reliability

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is the fraction of the delay randomized in both directions.
	Jitter float64
	// ShouldRetry decides whether err is worth another attempt.
	ShouldRetry func(err error, attempt int) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 25 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
		ShouldRetry: func(err error, attempt int) bool {
			return IsStoreFailure(err) && !IsCircuitOpenError(err)
		},
		OnRetry: func(int, time.Duration, error) {},
	}
}

// ExponentialBackoff executes operations with exponential backoff and jitter.
type ExponentialBackoff struct {
	config RetryConfig
}

func NewExponentialBackoff(config RetryConfig) *ExponentialBackoff {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = def.Jitter
	}
	if config.ShouldRetry == nil {
		config.ShouldRetry = def.ShouldRetry
	}
	if config.OnRetry == nil {
		config.OnRetry = def.OnRetry
	}
	return &ExponentialBackoff{config: config}
}

func (b *ExponentialBackoff) MaxAttempts() int { return b.config.MaxAttempts }

// NextDelay returns the delay before retry number attempt+1 (attempt is
// 0-indexed).
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	delay := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(attempt))
	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}
	if b.config.Jitter > 0 {
		delay += (rand.Float64() - 0.5) * 2 * delay * b.config.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Execute runs operation until it succeeds, returns an error not worth
// retrying, runs out of attempts or ctx is done. The last error is returned.
func (b *ExponentialBackoff) Execute(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= b.config.MaxAttempts-1 || !b.config.ShouldRetry(err, attempt) {
			break
		}

		delay := b.NextDelay(attempt)
		b.config.OnRetry(attempt+1, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
