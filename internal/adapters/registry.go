package adapters

import (
	"strings"
	"sync"
)

// Registry maps brand names to adapters. Lookup never fails: unknown brands
// get the generic adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	fallback Adapter
}

// NewRegistry builds a registry preloaded with every built-in adapter.
func NewRegistry() *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
		fallback: Generic(),
	}
	for _, a := range []Adapter{Everlane(), Zara()} {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Brand())] = a
}

func (r *Registry) Lookup(brand string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[strings.ToLower(brand)]; ok {
		return a
	}
	return r.fallback
}

// Brands lists the registered brand names, fallback excluded.
func (r *Registry) Brands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for brand := range r.adapters {
		out = append(out, brand)
	}
	return out
}
