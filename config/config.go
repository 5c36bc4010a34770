package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Redis
	RedisAddr string

	// Providers
	OpenAIAPIKey     string
	GeminiAPIKey     string
	AnthropicAPIKey  string
	MistralAPIKey    string
	GroqAPIKey       string
	PerplexityAPIKey string

	// Model registry overlay (optional YAML file)
	ModelCatalogPath string

	// Response cache
	CacheBackend    string // "memory", "file" or "redis"
	CacheDir        string // file backend only
	CacheCapacity   int
	CacheDefaultTTL time.Duration

	// Retry
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration

	// Per-provider request rate (sliding window)
	ProviderRPM int

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Tenant rate limiting
	DefaultRateLimitTPM int64 // tokens per minute, default: 100000
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		MistralAPIKey:        os.Getenv("MISTRAL_API_KEY"),
		GroqAPIKey:           os.Getenv("GROQ_API_KEY"),
		PerplexityAPIKey:     os.Getenv("PERPLEXITY_API_KEY"),
		ModelCatalogPath:     os.Getenv("MODEL_CATALOG_PATH"),
		CacheBackend:         getEnv("CACHE_BACKEND", "memory"),
		CacheDir:             getEnv("CACHE_DIR", ".llmcache"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.CacheCapacity, err = getEnvInt("CACHE_CAPACITY", 1024); err != nil {
		return nil, err
	}
	if cfg.CacheDefaultTTL, err = getEnvDuration("CACHE_DEFAULT_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts, err = getEnvInt("RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay, err = getEnvDuration("RETRY_MAX_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerFailureThreshold, err = getEnvInt("BREAKER_FAILURE_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.BreakerResetTimeout, err = getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProviderRPM, err = getEnvInt("PROVIDER_RPM", 600); err != nil {
		return nil, err
	}

	tpmStr := getEnv("DEFAULT_RATE_LIMIT_TPM", "100000")
	tpm, err := strconv.ParseInt(tpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_TPM: %w", err)
	}
	cfg.DefaultRateLimitTPM = tpm

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	switch cfg.CacheBackend {
	case "memory", "file", "redis":
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q (want memory, file or redis)", cfg.CacheBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
