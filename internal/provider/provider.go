package provider

import (
	"context"
	"time"
)

// Request is the provider-agnostic generation request. It is immutable for
// the duration of one call; bindings translate it to vendor wire formats.
type Request struct {
	Model        string     `json:"model"`
	Prompt       string     `json:"prompt"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	Temperature  float64    `json:"temperature,omitempty"`
	TopP         float64    `json:"top_p,omitempty"`
	MaxTokens    int        `json:"max_tokens,omitempty"`
	Tools        []ToolSpec `json:"tools,omitempty"`
	JSONMode     bool       `json:"json_mode,omitempty"`
	Stream       bool       `json:"stream,omitempty"`

	// Cache controls. Neither participates in the cache fingerprint.
	CacheDisabled bool          `json:"cache_disabled,omitempty"`
	CacheTTL      time.Duration `json:"cache_ttl,omitempty"`

	// Metadata for routing and billing, not part of the provider call.
	TenantID  string `json:"tenant_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ToolSpec describes a function the model may call.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// TokenUsage counts the units consumed by one completed call. Estimated is
// set when the counts were derived from text length rather than reported by
// the provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	ReasoningTokens   int  `json:"reasoning_tokens,omitempty"`
	CachedTokens      int  `json:"cached_tokens,omitempty"`
	LiveSearchSources int  `json:"live_search_sources,omitempty"`
	Estimated         bool `json:"estimated,omitempty"`
}

// Response is the unified result of one generation call.
type Response struct {
	ID           string         `json:"id"`
	Text         string         `json:"text"`
	Model        string         `json:"model"`
	Provider     string         `json:"provider"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        TokenUsage     `json:"usage"`
	Cost         *CostBreakdown `json:"cost,omitempty"`
	Cached       bool           `json:"cached,omitempty"`
	LatencyMs    int64          `json:"latency_ms,omitempty"`
}

// CostBreakdown is the derived cost of one completed request. Never mutated
// after construction; recomputed fresh per request.
type CostBreakdown struct {
	InputCost            float64 `json:"input_cost"`
	OutputCost           float64 `json:"output_cost"`
	TotalCost            float64 `json:"total_cost"`
	Currency             string  `json:"currency"`
	RateInputPerMillion  float64 `json:"rate_input_per_million"`
	RateOutputPerMillion float64 `json:"rate_output_per_million"`

	CachedDiscount *CachedDiscount `json:"cached_discount,omitempty"`
	SearchCost     *SearchCost     `json:"search_cost,omitempty"`
}

// CachedDiscount is the cached-token cost line.
type CachedDiscount struct {
	CachedTokens   int     `json:"cached_tokens"`
	RatePerMillion float64 `json:"rate_per_million"`
	Cost           float64 `json:"cost"`
}

// SearchCost is the live-search surcharge line.
type SearchCost struct {
	Sources       int     `json:"sources"`
	RatePerSource float64 `json:"rate_per_source"`
	Cost          float64 `json:"cost"`
}

// Chunk is one element of a streaming response. Providers may attach the
// finish reason and usage metadata to the terminal chunk only.
type Chunk struct {
	Delta        string
	Done         bool
	FinishReason string
	Usage        *TokenUsage
	Err          error
}

// TransportFunc performs one non-streaming provider call.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// StreamTransportFunc opens one streaming provider call. The returned channel
// is closed by the binding when the stream ends or the context is cancelled.
type StreamTransportFunc func(ctx context.Context, req *Request) (<-chan *Chunk, error)

// Provider is a vendor binding.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	CompleteStream(ctx context.Context, req *Request) (<-chan *Chunk, error)
	Name() string
	SupportedModels() []string
}
