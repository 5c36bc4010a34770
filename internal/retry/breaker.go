package retry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

// BreakerConfig controls the per-operation circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

// DefaultBreakerConfig returns the standard breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
	}
}

// Breakers holds one circuit breaker per operation name, created lazily on
// first use. A breaker opens after FailureThreshold consecutive failures,
// moves to half-open after ResetTimeout and allows exactly one trial call.
type Breakers struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakers creates an empty breaker registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}
	return &Breakers{cfg: cfg, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *Breakers) get(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[name]; ok {
		return cb
	}
	threshold := b.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     b.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit %s: %s -> %s", name, from, to)
		},
	})
	b.breakers[name] = cb
	return cb
}

// State returns the current circuit state for name.
func (b *Breakers) State(name string) gobreaker.State {
	return b.get(name).State()
}

// Open reports whether the circuit for name is open.
func (b *Breakers) Open(name string) bool {
	return b.get(name).State() == gobreaker.StateOpen
}

// DoWithBreaker runs op through the named circuit with retries inside: the
// breaker records one outcome per logical call, not per attempt. While the
// circuit is open the call fails fast without invoking op.
func DoWithBreaker[T any](ctx context.Context, b *Breakers, name string, cfg Config, op func() (T, error)) (T, error) {
	var zero T
	cb := b.get(name)
	res, err := cb.Execute(func() (any, error) {
		return Do(ctx, name, cfg, op)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &provider.Error{
				Provider: name,
				Code:     provider.CodeCircuitOpen,
				Message:  "circuit open, failing fast",
				Err:      err,
			}
		}
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// Record feeds an out-of-band outcome into the named circuit. Streaming
// calls use it once the stream outcome is known.
func (b *Breakers) Record(name string, err error) {
	_, _ = b.get(name).Execute(func() (any, error) {
		return nil, err
	})
}
