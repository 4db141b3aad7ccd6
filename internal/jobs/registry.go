package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/indago/internal/interfaces"
)

// Registry maps work-function kinds to their factories. Registration happens
// during application wiring; lookups happen per request.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]interfaces.WorkFactory
}

// NewRegistry creates an empty work-function registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]interfaces.WorkFactory),
	}
}

// Register binds a factory to a kind, replacing any previous binding
func (r *Registry) Register(kind string, factory interfaces.WorkFactory) error {
	if kind == "" {
		return fmt.Errorf("kind is required")
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	return nil
}

// Build constructs a work function of the given kind from raw parameters
func (r *Registry) Build(kind string, params json.RawMessage) (interfaces.WorkFunc, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown job kind: %s", kind)
	}
	return factory(params)
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
