// Package flows wires sources, transforms and sinks into the named ETL
// flows the CLI runs and schedules.
package flows

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Flow runs one named flow end to end.
type Flow func(ctx context.Context, d *Deps) error

// Registry holds flows indexed by name.
type Registry struct {
	flows map[string]Flow
	mu    sync.RWMutex
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{
		flows: make(map[string]Flow),
	}
}

// Register adds a flow under name.
// Panics if the name is already registered.
func (r *Registry) Register(name string, flow Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.flows[name]; exists {
		panic(fmt.Sprintf("flow already registered: %s", name))
	}
	r.flows[name] = flow
}

// Get returns the flow registered under name.
func (r *Registry) Get(name string) (Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, ok := r.flows[name]
	return flow, ok
}

// List returns every registered flow name in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.flows))
	for name := range r.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named flow.
func (r *Registry) Run(ctx context.Context, name string, d *Deps) error {
	flow, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("unknown flow: %s", name)
	}
	return flow(ctx, d)
}

// --- Default Global Registry ---

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry holding every built-in flow.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a flow to the default registry.
func Register(name string, flow Flow) {
	defaultRegistry.Register(name, flow)
}
