// Package cost turns token usage into a billing breakdown using the model
// registry's pricing. Compute is pure: no I/O, no mutation, identical
// inputs always produce identical output.
package cost

import (
	"fmt"

	"github.com/vnmchuo/llm-exec/internal/provider"
	"github.com/vnmchuo/llm-exec/internal/registry"
)

// cachedRateFraction is the fraction of the input rate billed for
// cached-input tokens on models that support caching.
const cachedRateFraction = 0.1

// searchRatePerSource is the flat USD charge per live-search source.
const searchRatePerSource = 0.005

// Accountant computes cost breakdowns against a model registry. The
// registry is read-only, so an Accountant is safe for concurrent use.
type Accountant struct {
	registry *registry.Registry
}

// New creates an Accountant backed by reg.
func New(reg *registry.Registry) *Accountant {
	return &Accountant{registry: reg}
}

// Compute prices usage for (provider, model). Returns an unknown-model
// error if the pair is not registered; pricing is never fabricated.
func (a *Accountant) Compute(providerName, model string, usage provider.TokenUsage) (*provider.CostBreakdown, error) {
	spec, ok := a.registry.Lookup(providerName, model)
	if !ok {
		return nil, &provider.Error{
			Provider: providerName,
			Code:     provider.CodeUnknownModel,
			Message:  fmt.Sprintf("model %q not registered for pricing", model),
		}
	}

	bd := &provider.CostBreakdown{
		InputCost:            float64(usage.PromptTokens) / 1e6 * spec.InputCostPerMillion,
		OutputCost:           float64(usage.CompletionTokens) / 1e6 * spec.OutputCostPerMillion,
		Currency:             "USD",
		RateInputPerMillion:  spec.InputCostPerMillion,
		RateOutputPerMillion: spec.OutputCostPerMillion,
	}
	bd.TotalCost = bd.InputCost + bd.OutputCost

	if usage.CachedTokens > 0 && spec.HasCapability(registry.CapCachedInput) {
		rate := spec.InputCostPerMillion * cachedRateFraction
		c := float64(usage.CachedTokens) / 1e6 * rate
		// TODO: the discounted cached cost is added on top of an input cost
		// that already bills those tokens at the full rate; confirm with
		// billing whether the full-rate portion should be subtracted first.
		bd.CachedDiscount = &provider.CachedDiscount{
			CachedTokens:   usage.CachedTokens,
			RatePerMillion: rate,
			Cost:           c,
		}
		bd.TotalCost += c
	}

	if usage.LiveSearchSources > 0 {
		c := float64(usage.LiveSearchSources) * searchRatePerSource
		bd.SearchCost = &provider.SearchCost{
			Sources:       usage.LiveSearchSources,
			RatePerSource: searchRatePerSource,
			Cost:          c,
		}
		bd.TotalCost += c
	}

	return bd, nil
}
