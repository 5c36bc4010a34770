package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = errors.New("api key not found")

// Key is a provisioned API key. TokenBudget is the tenant's token
// allowance per minute, consumed by the tenant rate limiter.
type Key struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Hash        string    `json:"hash"`
	Label       string    `json:"label"`
	TokenBudget int64     `json:"token_budget"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (k *Key) MarshalBinary() ([]byte, error) {
	return json.Marshal(k)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (k *Key) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, k)
}

type Store interface {
	GetByHash(ctx context.Context, hash string) (*Key, error)
	Create(ctx context.Context, key *Key) error
	Revoke(ctx context.Context, keyID string) error
	Touch(ctx context.Context, keyID string) error
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	apiKeyIDKey  contextKey = "api_key_id"
	requestIDKey contextKey = "request_id"
)

const (
	cacheTTL    = 5 * time.Minute
	negativeTTL = 30 * time.Second
)

// HashKey returns the hex sha256 of a raw bearer key. Raw keys are
// never stored or logged.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func NewMiddleware(store Store, cache *redis.Client) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized: missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			hash := HashKey(strings.TrimPrefix(authHeader, "Bearer "))
			cacheKey := "auth:" + hash

			var key Key
			err := cache.Get(ctx, cacheKey).Scan(&key)
			if err == nil {
				if key.ID == "" {
					// Negative entry: a recent miss for this hash.
					http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(withKey(ctx, &key)))
				return
			}
			if err != redis.Nil {
				log.Printf("auth: redis error: %v", err)
			}

			found, err := store.GetByHash(ctx, hash)
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					_ = cache.Set(ctx, cacheKey, &Key{}, negativeTTL).Err()
					http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			_ = cache.Set(ctx, cacheKey, found, cacheTTL).Err()
			if err := store.Touch(ctx, found.ID); err != nil {
				log.Printf("auth: touch key %s: %v", found.ID, err)
			}

			next.ServeHTTP(w, r.WithContext(withKey(ctx, found)))
		})
	}
}

func withKey(ctx context.Context, key *Key) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, key.TenantID)
	return context.WithValue(ctx, apiKeyIDKey, key.ID)
}

// Helpers to extract from context
func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantIDKey).(string); ok {
		return id
	}
	return ""
}

func GetAPIKeyID(ctx context.Context) string {
	if id, ok := ctx.Value(apiKeyIDKey).(string); ok {
		return id
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Helpers for testing
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithAPIKeyID(ctx context.Context, apiKeyID string) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, apiKeyID)
}
