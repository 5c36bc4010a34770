package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/llm-exec/config"
	"github.com/vnmchuo/llm-exec/internal/auth"
	"github.com/vnmchuo/llm-exec/internal/billing"
	"github.com/vnmchuo/llm-exec/internal/cache"
	"github.com/vnmchuo/llm-exec/internal/cost"
	"github.com/vnmchuo/llm-exec/internal/provider"
	"github.com/vnmchuo/llm-exec/internal/provider/claude"
	"github.com/vnmchuo/llm-exec/internal/provider/compat"
	"github.com/vnmchuo/llm-exec/internal/provider/gemini"
	"github.com/vnmchuo/llm-exec/internal/provider/openai"
	"github.com/vnmchuo/llm-exec/internal/proxy"
	"github.com/vnmchuo/llm-exec/internal/registry"
	"github.com/vnmchuo/llm-exec/internal/retry"
	"github.com/vnmchuo/llm-exec/internal/seeder"
	"github.com/vnmchuo/llm-exec/internal/telemetry"
	"github.com/vnmchuo/llm-exec/internal/worker"
	"github.com/vnmchuo/llm-exec/pkg/ratelimit"
)

func buildCache(cfg *config.Config, rdb *redis.Client) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "file":
		return cache.NewFileStore(cfg.CacheDir, cfg.CacheCapacity, cfg.CacheDefaultTTL)
	case "redis":
		return cache.NewRedisStore(rdb, "llmcache", cfg.CacheDefaultTTL), nil
	default:
		return cache.NewMemoryStore(cfg.CacheCapacity, cfg.CacheDefaultTTL), nil
	}
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.ModelCatalogPath == "" {
		return registry.Default(), nil
	}
	return registry.LoadFile(cfg.ModelCatalogPath)
}

func buildProviders(cfg *config.Config, reg *registry.Registry) []provider.Provider {
	var providers []provider.Provider
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, gemini.New(cfg.GeminiAPIKey))
	}
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, openai.New(cfg.OpenAIAPIKey))
	}
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, claude.New(cfg.AnthropicAPIKey))
	}
	if cfg.MistralAPIKey != "" {
		providers = append(providers, compat.New("mistral", cfg.MistralAPIKey,
			"https://api.mistral.ai/v1", reg.Models("mistral")))
	}
	if cfg.GroqAPIKey != "" {
		providers = append(providers, compat.New("groq", cfg.GroqAPIKey,
			"https://api.groq.com/openai/v1", reg.Models("groq")))
	}
	if cfg.PerplexityAPIKey != "" {
		providers = append(providers, compat.New("perplexity", cfg.PerplexityAPIKey,
			"https://api.perplexity.ai", reg.Models("perplexity")))
	}
	return providers
}

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("llm-exec", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb)

	// 6. Init billing with async usage writer
	billingStore := billing.NewPostgresStore(pool)
	usageWorker := worker.New(billingStore, 1024)
	workerCtx, stopWorker := context.WithCancel(ctx)
	go usageWorker.Run(workerCtx)

	// 7. Init tenant rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitTPM)

	// 8. Model registry and cost accounting
	reg, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalf("failed to load model catalog: %v", err)
	}
	accountant := cost.New(reg)

	// 9. Response cache
	respCache, err := buildCache(cfg, rdb)
	if err != nil {
		log.Fatalf("failed to init response cache: %v", err)
	}

	// 10. Init providers and router
	providers := buildProviders(cfg, reg)
	if len(providers) == 0 {
		log.Fatalf("no provider API keys configured")
	}
	router := proxy.NewRouter(providers, proxy.RouterConfig{
		Cache:      respCache,
		Registry:   reg,
		Accountant: accountant,
		Retry: retry.Config{
			MaxAttempts:     cfg.RetryMaxAttempts,
			BaseDelay:       cfg.RetryBaseDelay,
			MaxDelay:        cfg.RetryMaxDelay,
			ExponentialBase: 2.0,
			Jitter:          true,
		},
		Breaker: retry.BreakerConfig{
			FailureThreshold: uint32(cfg.BreakerFailureThreshold),
			ResetTimeout:     cfg.BreakerResetTimeout,
		},
		RateLimit:  cfg.ProviderRPM,
		RateWindow: time.Minute,
	})

	// 11. Init handler
	tracer := otel.GetTracerProvider().Tracer("llm-exec")
	handler := proxy.NewHandler(router, billingStore, usageWorker, limiter, tracer)

	// 12. Seed test API key if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAPIKey(ctx, authStore)
	}

	// 13. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"llm-exec"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/chat/completions", handler.HandleComplete)
		r.Post("/v1/chat/completions/stream", handler.HandleCompleteStream)
		r.Get("/v1/usage", handler.HandleUsage)
		r.Get("/v1/cache/stats", handler.HandleCacheStats)
	})

	// 14. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("LLM execution service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	// Drain pending usage logs before exit.
	stopWorker()
	usageWorker.Wait()
	log.Println("Server stopped")
}
