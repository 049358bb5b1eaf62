package platform

import (
	"errors"
	"sync"
)

// Registry holds adapters keyed by source, in registration order.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Source]Adapter
	ordered  []Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Source]Adapter),
		ordered:  make([]Adapter, 0),
	}
}

// Register adds an adapter.
// Returns an error if the adapter is nil, has an empty name, or is already registered.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	name := a.Name()
	if name == "" {
		return errors.New("adapter name cannot be empty")
	}
	if name == SourceFallback {
		return errors.New("fallback source cannot be registered as a primary adapter")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return errors.New("adapter already registered: " + string(name))
	}

	r.adapters[name] = a
	r.ordered = append(r.ordered, a)
	return nil
}

// Get retrieves an adapter by source.
func (r *Registry) Get(name Source) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	return a, ok
}

// Names returns registered sources in registration order.
func (r *Registry) Names() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Source, 0, len(r.ordered))
	for _, a := range r.ordered {
		names = append(names, a.Name())
	}
	return names
}
