package particle

import (
	"fmt"
	"sort"
)

// Registry resolves particle names to their physical properties. It is built
// once from the configuration and never mutated afterwards; builders and
// evaluators receive it explicitly rather than through package state, so one
// process can run several fit configurations side by side.
type Registry struct {
	byName map[string]*Particle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Particle)}
}

// Add registers a particle. Duplicate names are a configuration error.
func (r *Registry) Add(p *Particle) error {
	if p.Name == "" {
		return fmt.Errorf("particle with empty name")
	}
	if _, ok := r.byName[p.Name]; ok {
		return fmt.Errorf("duplicate particle %q", p.Name)
	}
	r.byName[p.Name] = p
	return nil
}

// Get returns the named particle, or an error naming the missing reference.
func (r *Registry) Get(name string) (*Particle, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown particle %q", name)
	}
	return p, nil
}

// Has reports whether the name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Len returns the number of registered particles.
func (r *Registry) Len() int { return len(r.byName) }

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
