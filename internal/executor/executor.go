// Package executor is the execution core every provider call passes
// through: cache lookup, rate limiting, retries with circuit breaking,
// stream aggregation, usage and cost accounting, cache write-back.
package executor

import (
	"context"
	"log"
	"time"

	"github.com/vnmchuo/llm-exec/internal/cache"
	"github.com/vnmchuo/llm-exec/internal/cost"
	"github.com/vnmchuo/llm-exec/internal/provider"
	"github.com/vnmchuo/llm-exec/internal/ratelimit"
	"github.com/vnmchuo/llm-exec/internal/retry"
	"github.com/vnmchuo/llm-exec/internal/stream"
)

// Options configures an Executor. Cache, Limiter and Accountant are
// optional; a nil Breakers gets defaults.
type Options struct {
	Cache      cache.Store
	Limiter    *ratelimit.Window
	Breakers   *retry.Breakers
	Retry      retry.Config
	Accountant *cost.Accountant
}

// Executor runs logical requests against one provider binding. The circuit
// for the provider is keyed by the executor's name, so one provider's
// failures never trip another's.
type Executor struct {
	name       string
	cache      cache.Store
	limiter    *ratelimit.Window
	breakers   *retry.Breakers
	retryCfg   retry.Config
	accountant *cost.Accountant
}

// New creates an Executor for the named provider.
func New(name string, opts Options) *Executor {
	breakers := opts.Breakers
	if breakers == nil {
		breakers = retry.NewBreakers(retry.DefaultBreakerConfig())
	}
	retryCfg := opts.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &Executor{
		name:       name,
		cache:      opts.Cache,
		limiter:    opts.Limiter,
		breakers:   breakers,
		retryCfg:   retryCfg,
		accountant: opts.Accountant,
	}
}

// Name returns the provider name this executor serves.
func (e *Executor) Name() string { return e.name }

// CircuitOpen reports whether the provider's circuit is currently open.
func (e *Executor) CircuitOpen() bool { return e.breakers.Open(e.name) }

// Execute runs one non-streaming request. At most one upstream call is made
// per logical request; retries happen inside the retry executor. Failed
// calls never reach the cache.
func (e *Executor) Execute(ctx context.Context, req *provider.Request, transport provider.TransportFunc) (*provider.Response, error) {
	start := time.Now()

	key, hit := e.cacheLookup(ctx, req)
	if hit != nil {
		return hit, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := retry.DoWithBreaker(ctx, e.breakers, e.name, e.retryCfg, func() (*provider.Response, error) {
		return transport(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Text == "" {
		return nil, provider.NoChoiceError(e.name)
	}

	e.finalize(ctx, req, resp, key, start)
	return resp, nil
}

// ExecuteStream runs one streaming request, invoking onToken for every text
// delta in arrival order and resolving only once the stream completes. A
// cache hit replays the full text through onToken in a single call.
func (e *Executor) ExecuteStream(ctx context.Context, req *provider.Request, transport provider.StreamTransportFunc, onToken func(delta string) error) (*provider.Response, error) {
	start := time.Now()

	key, hit := e.cacheLookup(ctx, req)
	if hit != nil {
		if onToken != nil {
			if err := onToken(hit.Text); err != nil {
				return nil, err
			}
		}
		return hit, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if e.breakers.Open(e.name) {
		return nil, provider.NewError(e.name, provider.CodeCircuitOpen, "circuit open, failing fast", nil)
	}

	// Cancelling sctx on any exit releases the binding's reader goroutine.
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := retry.Do(sctx, e.name, e.retryCfg, func() (<-chan *provider.Chunk, error) {
		return transport(sctx, req)
	})
	if err != nil {
		e.breakers.Record(e.name, err)
		return nil, err
	}

	resp, err := stream.Collect(sctx, req.Prompt, ch, onToken)
	if err == nil && resp.Text == "" {
		err = provider.NoChoiceError(e.name)
	}
	e.breakers.Record(e.name, err)
	if err != nil {
		return nil, err
	}

	e.finalize(ctx, req, resp, key, start)
	return resp, nil
}

// cacheLookup returns the fingerprint and, on a hit, a copy of the cached
// response annotated as cached. The key is empty when caching is disabled.
func (e *Executor) cacheLookup(ctx context.Context, req *provider.Request) (string, *provider.Response) {
	if req.CacheDisabled || e.cache == nil {
		return "", nil
	}
	key := cache.Key(req)
	cached, ok := e.cache.Get(ctx, key)
	if !ok {
		return key, nil
	}
	out := *cached
	out.Cached = true
	return key, &out
}

// finalize fills usage, cost and latency, then writes the completed
// response back to the cache.
func (e *Executor) finalize(ctx context.Context, req *provider.Request, resp *provider.Response, key string, start time.Time) {
	if resp.Provider == "" {
		resp.Provider = e.name
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Usage == (provider.TokenUsage{}) {
		resp.Usage = stream.Estimate(req.Prompt+req.SystemPrompt, resp.Text)
	}
	resp.LatencyMs = time.Since(start).Milliseconds()

	if e.accountant != nil {
		bd, err := e.accountant.Compute(e.name, resp.Model, resp.Usage)
		if err != nil {
			// A response without cost information is still valid.
			log.Printf("executor: %s: no cost for model %s: %v", e.name, resp.Model, err)
		} else {
			resp.Cost = bd
		}
	}

	if key != "" {
		if err := e.cache.Set(ctx, key, resp, req.CacheTTL); err != nil {
			log.Printf("executor: %s: cache write failed: %v", e.name, err)
		}
	}
}
