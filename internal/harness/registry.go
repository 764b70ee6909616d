package harness

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps harness ids to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ID]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ID]Adapter)}
}

// Register adds an adapter. Registering an id twice is an error.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHarness, a.ID())
	}
	r.adapters[a.ID()] = a
	return nil
}

// Get returns the adapter for id.
func (r *Registry) Get(id ID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHarness, id)
	}
	return a, nil
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Resolve maps id strings to adapters, in order. An empty list selects
// every registered adapter.
func (r *Registry) Resolve(ids []string) ([]Adapter, error) {
	if len(ids) == 0 {
		for _, id := range r.IDs() {
			ids = append(ids, string(id))
		}
	}
	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		a, err := r.Get(ID(id))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
