package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 2.
	MaxAttempts int

	// InitialBackoff is the base delay before the first retry. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier scales the backoff after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = no jitter, 0.5 = ±50%).
	JitterFraction float64

	// ShouldRetry optionally overrides the default check. If nil,
	// IsRetryable is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)

	// Recover runs after a failed attempt and before the next one. The
	// catalog manager uses it to replace its session. A Recover error ends
	// the retry loop.
	Recover func(ctx context.Context, attempt int, err error) error
}

// DefaultRetryConfig returns the retry configuration used for catalog queries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Attempts reports how many attempts DoVal made, including the final one.
type Attempts int

// DoVal executes fn with retry logic and returns its value. It retries only
// on errors accepted by ShouldRetry. Context cancellation stops retries
// immediately. The number of attempts made is returned alongside the error so
// callers can record it.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, Attempts, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	var zero T
	var lastErr error
	attempt := 0
	for attempt < cfg.MaxAttempts {
		val, err := fn(ctx)
		attempt++
		if err == nil {
			return val, Attempts(attempt), nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(lastErr) {
			return zero, Attempts(attempt), lastErr
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		if cfg.Recover != nil {
			if rerr := cfg.Recover(ctx, attempt, lastErr); rerr != nil {
				return zero, Attempts(attempt), rerr
			}
		}

		delay := computeBackoff(attempt-1, cfg)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, Attempts(attempt), lastErr
		case <-timer.C:
		}
	}

	return zero, Attempts(attempt), lastErr
}

// Do is DoVal for functions without a result.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, _, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(component, itemCode string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying query",
			zap.String("component", component),
			zap.String("item_code", itemCode),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
