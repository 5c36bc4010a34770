// Package retry wraps provider calls with bounded exponential-backoff
// retries and per-operation circuit breaking.
package retry

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

// Config controls the retry loop.
type Config struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool

	// Retryable overrides the default predicate (connection errors, 5xx
	// and 429 are retried; other client errors are not).
	Retryable func(error) bool
}

// DefaultConfig returns the standard retry settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

func (c Config) retryable(err error) bool {
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	return provider.Retryable(err)
}

// policy implements backoff.BackOff with delays of
// min(maxDelay, baseDelay*exponentialBase^(attempt-1)), jittered by a
// uniform factor in [0.5, 1.0].
type policy struct {
	cfg     Config
	attempt int
}

func (p *policy) NextBackOff() time.Duration {
	p.attempt++
	d := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.ExponentialBase, float64(p.attempt-1))
	if max := float64(p.cfg.MaxDelay); d > max {
		d = max
	}
	if p.cfg.Jitter {
		d *= 0.5 + 0.5*rand.Float64()
	}
	return time.Duration(d)
}

func (p *policy) Reset() { p.attempt = 0 }

// Do runs op with retries. Non-retryable errors propagate on first
// occurrence; exhausting attempts returns the last error. Cancellation
// preempts any pending backoff sleep.
func Do[T any](ctx context.Context, name string, cfg Config, op func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	wrapped := func() (T, error) {
		v, err := op()
		if err != nil && !cfg.retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(&policy{cfg: cfg}),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			log.Printf("retry: %s failed, next attempt in %s: %v", name, delay.Round(time.Millisecond), err)
		}),
	)
}
