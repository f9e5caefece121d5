package llm

import (
	"sort"
	"sync"
)

// Registry maps provider ids to adapters. Lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns a registry holding the given adapters keyed by Info().ID.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter under its provider id.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Info().ID] = a
}

// Lookup returns the adapter for provider or *UnsupportedProviderError.
func (r *Registry) Lookup(provider string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[provider]
	if !ok {
		return nil, &UnsupportedProviderError{Provider: provider}
	}
	return a, nil
}

// Providers lists the registered providers sorted by id.
func (r *Registry) Providers() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderInfo, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
