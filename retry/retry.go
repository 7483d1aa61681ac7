// Package retry runs operations with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrMaxRetriesExceeded indicates all retry attempts failed.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Func is an operation that can be retried.
type Func func(ctx context.Context) error

// Condition reports whether an error should trigger a retry.
type Condition func(err error) bool

// Config holds retry configuration.
type Config struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
	ShouldRetry       Condition
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option configures retry behavior.
type Option func(*Config)

// DefaultConfig returns the defaults used for requests to remote services.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.2,
	}
}

// WithMaxAttempts sets the maximum number of attempts, the first included.
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) { c.InitialDelay = max(d, 0) }
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = max(d, 0) }
}

// WithBackoffMultiplier sets the exponential backoff factor. Values below 1
// mean a constant delay.
func WithBackoffMultiplier(m float64) Option {
	return func(c *Config) { c.BackoffMultiplier = max(m, 1.0) }
}

// WithJitterFactor sets the random jitter as a fraction of the delay,
// clamped to [0, 1].
func WithJitterFactor(j float64) Option {
	return func(c *Config) { c.JitterFactor = min(max(j, 0), 1.0) }
}

// WithRetryCondition sets the function that selects retryable errors.
func WithRetryCondition(cond Condition) Option {
	return func(c *Config) { c.ShouldRetry = cond }
}

// WithOnRetry sets a hook called before each wait, for logging.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// permanentError stops Do regardless of the retry condition.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns err itself.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is wrapped with ErrMaxRetriesExceeded.
func Do(ctx context.Context, fn Func, opts ...Option) error {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("%w: no attempts configured", ErrMaxRetriesExceeded)
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := addJitter(delay, cfg.JitterFactor)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = nextDelay(delay, cfg.BackoffMultiplier, cfg.MaxDelay)
	}

	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// nextDelay multiplies delay, saturating at maxDelay.
func nextDelay(delay time.Duration, multiplier float64, maxDelay time.Duration) time.Duration {
	if multiplier <= 1.0 {
		return min(delay, maxDelay)
	}

	result := float64(delay) * multiplier
	if math.IsInf(result, 0) || math.IsNaN(result) || result > float64(math.MaxInt64) {
		return maxDelay
	}
	next := time.Duration(result)
	if next < 0 {
		return maxDelay
	}
	return min(next, maxDelay)
}

func addJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	factor = min(factor, 1.0)

	jitter := time.Duration(float64(d) * factor * (2*rand.Float64() - 1)) //nolint:gosec // math/rand is fine for jitter
	return max(d+jitter, 0)
}
