package strategy

import (
	"sync"

	"veloz/internal/errs"
)

// Registry is the factory registry: type name -> Factory. Registration
// happens at program start (spec.md §4.C).
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Type]Factory)}
}

// Register adds factory under typ, overwriting any prior registration for
// the same type (last registration wins, matching the teacher's map-set
// idiom elsewhere in this codebase).
func (r *Registry) Register(typ Type, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = factory
}

// Build constructs a fresh Instance via the factory registered for
// cfg.Type, or an error if no factory matches.
func (r *Registry) Build(cfg Config) (Instance, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.NotFound, "no factory registered for strategy type").WithDetail("type", string(cfg.Type))
	}
	return factory(cfg)
}
