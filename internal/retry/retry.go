// Package retry re-runs operations that failed with a transient error.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/config"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
)

// Policy bounds the number of retries and the backoff between them
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to repository.IsTransient.
	Retryable func(error) bool

	Logger *zap.Logger
}

// DefaultPolicy retries up to three times starting at one second, capped at ten
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// PolicyFromConfig builds a policy from the RETRY_ settings
func PolicyFromConfig(cfg config.RetryConfig, logger *zap.Logger) Policy {
	return Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay.Duration,
		MaxDelay:   cfg.MaxDelay.Duration,
		Logger:     logger,
	}
}

// backOff builds the exponential schedule: BaseDelay doubling up to MaxDelay,
// without jitter. A zero MaxDelay leaves the growth uncapped.
func (p Policy) backOff() *backoff.ExponentialBackOff {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(math.MaxInt64)
	}
	base := min(p.BaseDelay, maxDelay)

	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
	b.Reset()
	return b
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// retries are used up. op is re-run from scratch on every attempt, so any
// transaction it opens is discarded and reopened.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = repository.IsTransient
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var last error
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		last = op(ctx)
		if last != nil && !retryable(last) {
			return struct{}{}, backoff.Permanent(last)
		}
		return struct{}{}, last
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(max(p.MaxRetries, 0))+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			attempt++
			logger.Warn("Retrying after transient error",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", p.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	)

	switch {
	case err == nil:
		return nil
	case !retryable(last):
		return last
	case ctx.Err() != nil:
		return fmt.Errorf("retry interrupted: %w", err)
	default:
		return fmt.Errorf("giving up after %d retries: %w", p.MaxRetries, last)
	}
}
