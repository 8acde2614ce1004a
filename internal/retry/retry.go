package retry

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"

	er "github.com/customeros/domainstack/internal/errors"
)

// Predicate determines whether an error should be retried.
type Predicate func(error) bool

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig is three attempts with jittered exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error or attempts run out.
func Do(ctx context.Context, config Config, shouldRetry Predicate, fn func(ctx context.Context) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		err := fn(ctx)
		if err != nil && !shouldRetry(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(newBackOff(config)),
		backoff.WithMaxTries(uint(config.MaxAttempts)),
	)
	return err
}

func newBackOff(config Config) backoff.BackOff {
	if config.BaseDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	if config.MaxDelay > 0 {
		b.MaxInterval = config.MaxDelay
	}
	b.Reset()
	return b
}

// IsRetryable retries transient-kind errors, deadlines and network timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if er.IsTransient(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
