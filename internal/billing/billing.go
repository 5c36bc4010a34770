package billing

import (
	"context"
	"time"
)

// UsageLog is one billed request. CostUSD comes from the cost accountant's
// breakdown; EstimatedUsage marks token counts derived from text length.
type UsageLog struct {
	ID             string
	TenantID       string
	RequestID      string
	Provider       string
	Model          string
	InputTokens    int
	OutputTokens   int
	CachedTokens   int
	CostUSD        float64
	Cached         bool
	EstimatedUsage bool
	LatencyMs      int64
	CreatedAt      time.Time
}

type Store interface {
	LogUsage(ctx context.Context, log *UsageLog) error
	GetUsageByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*UsageLog, error)
	GetTotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
}
