package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/vnmchuo/llm-exec/internal/cache"
	"github.com/vnmchuo/llm-exec/internal/cost"
	"github.com/vnmchuo/llm-exec/internal/executor"
	"github.com/vnmchuo/llm-exec/internal/provider"
	"github.com/vnmchuo/llm-exec/internal/ratelimit"
	"github.com/vnmchuo/llm-exec/internal/registry"
	"github.com/vnmchuo/llm-exec/internal/retry"
)

// RouterConfig wires the shared execution services into per-provider
// executors. Cache and Accountant may be nil to disable caching or cost
// accounting.
type RouterConfig struct {
	Cache      cache.Store
	Registry   *registry.Registry
	Accountant *cost.Accountant
	Retry      retry.Config
	Breaker    retry.BreakerConfig

	// Outbound sliding-window limit per provider.
	RateLimit  int
	RateWindow time.Duration
}

// Router selects a provider for each request and runs the call through
// that provider's executor. Each provider gets its own rate-limit window;
// circuits are keyed by provider name.
type Router struct {
	providers []provider.Provider
	registry  *registry.Registry
	breakers  *retry.Breakers
	execs     map[string]*executor.Executor
	cache     cache.Store
}

func NewRouter(providers []provider.Provider, cfg RouterConfig) *Router {
	breakers := retry.NewBreakers(cfg.Breaker)
	execs := make(map[string]*executor.Executor, len(providers))
	for _, p := range providers {
		execs[p.Name()] = executor.New(p.Name(), executor.Options{
			Cache:      cfg.Cache,
			Limiter:    ratelimit.NewWindow(cfg.RateLimit, cfg.RateWindow),
			Breakers:   breakers,
			Retry:      cfg.Retry,
			Accountant: cfg.Accountant,
		})
	}
	return &Router{
		providers: providers,
		registry:  cfg.Registry,
		breakers:  breakers,
		execs:     execs,
		cache:     cfg.Cache,
	}
}

// Route picks a provider for req. Providers whose circuit is open are
// skipped. A request naming a model goes to the first provider supporting
// it; otherwise the cheapest provider by registered input rate wins.
func (r *Router) Route(ctx context.Context, req *provider.Request) (provider.Provider, error) {
	var candidates []provider.Provider
	for _, p := range r.providers {
		if r.breakers.Open(p.Name()) {
			continue
		}
		if req.Model == "" {
			candidates = append(candidates, p)
			continue
		}
		for _, m := range p.SupportedModels() {
			if m == req.Model {
				candidates = append(candidates, p)
				break
			}
		}
	}

	if len(candidates) == 0 {
		return nil, errors.New("all providers unavailable")
	}
	if req.Model != "" {
		return candidates[0], nil
	}

	if r.registry != nil {
		names := make([]string, len(candidates))
		for i, p := range candidates {
			names[i] = p.Name()
		}
		if cheapest, ok := r.registry.CheapestProvider(names); ok {
			for _, p := range candidates {
				if p.Name() == cheapest {
					return p, nil
				}
			}
		}
	}
	return candidates[0], nil
}

// Execute runs a non-streaming request through p's execution core.
func (r *Router) Execute(ctx context.Context, req *provider.Request, p provider.Provider) (*provider.Response, error) {
	return r.execs[p.Name()].Execute(ctx, req, p.Complete)
}

// ExecuteStream runs a streaming request through p's execution core,
// calling onToken per delta, and returns the aggregated response once the
// stream completes.
func (r *Router) ExecuteStream(ctx context.Context, req *provider.Request, p provider.Provider, onToken func(delta string) error) (*provider.Response, error) {
	return r.execs[p.Name()].ExecuteStream(ctx, req, p.CompleteStream, onToken)
}

// CacheMetrics reports the shared response cache counters.
func (r *Router) CacheMetrics(ctx context.Context) cache.Metrics {
	if r.cache == nil {
		return cache.Metrics{}
	}
	return r.cache.Metrics()
}
