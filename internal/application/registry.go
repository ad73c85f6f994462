package application

import (
	"fmt"
	"sync"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// Registry dispatches provider identifiers to their usage adapters. Adapters
// can be replaced at runtime, for example after a base URL changes.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.ProviderID]driven.UsageAdapter
}

// NewRegistry creates a Registry holding adapters, keyed by their Provider().
func NewRegistry(adapters ...driven.UsageAdapter) *Registry {
	r := &Registry{adapters: make(map[model.ProviderID]driven.UsageAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Get returns the adapter for provider.
func (r *Registry) Get(provider model.ProviderID) (driven.UsageAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownProvider, provider)
	}
	return a, nil
}

// Replace installs adapter for its provider, replacing any previous one.
func (r *Registry) Replace(adapter driven.UsageAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Provider()] = adapter
}

// Providers returns the registered providers in display order.
func (r *Registry) Providers() []model.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ProviderID, 0, len(r.adapters))
	for _, p := range model.Providers {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
