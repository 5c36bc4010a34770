// Package registry holds the static model catalog: per-model capability
// flags and pricing. The catalog is immutable after construction and safe
// for concurrent readers without locking.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelSpec describes one model offered by a provider. Costs are USD per
// one million tokens.
type ModelSpec struct {
	Provider             string   `yaml:"provider"`
	APIName              string   `yaml:"api_name"`
	ContextWindow        int      `yaml:"context_window"`
	MaxTokens            int      `yaml:"max_tokens"`
	InputCostPerMillion  float64  `yaml:"input_cost_per_million"`
	OutputCostPerMillion float64  `yaml:"output_cost_per_million"`
	Capabilities         []string `yaml:"capabilities,omitempty"`
}

// HasCapability reports whether the model advertises the named capability.
func (s *ModelSpec) HasCapability(name string) bool {
	for _, c := range s.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Registry is the lookup table, keyed by (provider, api name).
type Registry struct {
	specs map[string]*ModelSpec
}

func key(providerName, model string) string {
	return providerName + "/" + model
}

// New builds a Registry from the given specs. Later entries replace earlier
// ones with the same (provider, model) pair.
func New(specs []ModelSpec) *Registry {
	r := &Registry{specs: make(map[string]*ModelSpec, len(specs))}
	for i := range specs {
		s := specs[i]
		r.specs[key(s.Provider, s.APIName)] = &s
	}
	return r
}

// Default returns a Registry preloaded with the built-in catalog.
func Default() *Registry {
	return New(builtinSpecs)
}

// LoadFile reads extra model specs from a YAML file and returns a Registry
// of the built-in catalog overlaid with them.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	var extra struct {
		Models []ModelSpec `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	return New(append(append([]ModelSpec{}, builtinSpecs...), extra.Models...)), nil
}

// Lookup returns the spec for (provider, model), or false if unregistered.
func (r *Registry) Lookup(providerName, model string) (*ModelSpec, bool) {
	s, ok := r.specs[key(providerName, model)]
	return s, ok
}

// Models returns the api names registered for a provider.
func (r *Registry) Models(providerName string) []string {
	var out []string
	for _, s := range r.specs {
		if s.Provider == providerName {
			out = append(out, s.APIName)
		}
	}
	return out
}

// CheapestProvider returns the provider with the lowest input rate among
// those listed, ignoring names with no registered models.
func (r *Registry) CheapestProvider(names []string) (string, bool) {
	best := ""
	bestRate := 0.0
	for _, name := range names {
		rate, found := 0.0, false
		for _, s := range r.specs {
			if s.Provider != name {
				continue
			}
			if !found || s.InputCostPerMillion < rate {
				rate = s.InputCostPerMillion
				found = true
			}
		}
		if found && (best == "" || rate < bestRate) {
			best = name
			bestRate = rate
		}
	}
	return best, best != ""
}
