// Package cache provides the response cache keyed on the semantic identity
// of a generation request. Three interchangeable backends: a bounded
// in-memory LRU store, a hybrid memory+file store for durability, and a
// Redis store for shared deployments.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

// Entry wraps a cached response with its lifecycle metadata.
type Entry struct {
	Value     *provider.Response `json:"value"`
	CreatedAt time.Time          `json:"created_at"`
	TTL       time.Duration      `json:"ttl"`
	HitCount  int64              `json:"hit_count"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// Metrics reports cache performance counters.
type Metrics struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int64 `json:"size"`
}

// Store is the cache contract. Implementations must be safe for concurrent
// use. Get returns false on miss; an expired entry is deleted and reported
// as a miss.
type Store interface {
	Get(ctx context.Context, key string) (*provider.Response, bool)
	Set(ctx context.Context, key string, value *provider.Response, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) int
	Metrics() Metrics
}

// fingerprint is the subset of a request that determines the provider call.
// Stream, cache flags, timeouts and tenant/request metadata are excluded so
// they never perturb the key.
type fingerprint struct {
	Model        string              `json:"model"`
	Prompt       string              `json:"prompt"`
	SystemPrompt string              `json:"system_prompt"`
	Temperature  float64             `json:"temperature"`
	TopP         float64             `json:"top_p"`
	MaxTokens    int                 `json:"max_tokens"`
	Tools        []provider.ToolSpec `json:"tools,omitempty"`
	JSONMode     bool                `json:"json_mode"`
}

// Key computes the deterministic fingerprint of a request. Two requests
// that would produce the same provider call hash identically.
func Key(req *provider.Request) string {
	fp := fingerprint{
		Model:        req.Model,
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		MaxTokens:    req.MaxTokens,
		Tools:        req.Tools,
		JSONMode:     req.JSONMode,
	}
	data, _ := json.Marshal(fp)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
