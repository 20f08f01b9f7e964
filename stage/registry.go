package stage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/caseflow"
)

// Registry maps stage names to definitions. It is safe for concurrent use;
// definitions cannot be changed once registered.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Definition
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Definition)}
}

// Register adds a stage. Registering a name twice is a configuration
// error and returns caseflow.ErrDuplicateStage.
func (r *Registry) Register(name string, fn Func, fatal bool, opts ...Option) error {
	if name == "" {
		return fmt.Errorf("%w: empty stage name", caseflow.ErrInvalidGraph)
	}
	if fn == nil {
		return fmt.Errorf("%w: stage %q has no function", caseflow.ErrInvalidGraph, name)
	}

	d := Definition{Name: name, Execute: fn, FatalOnFailure: fatal}
	for _, o := range opts {
		o(&d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("%w: %q", caseflow.ErrDuplicateStage, name)
	}
	r.stages[name] = d
	return nil
}

// MustRegister is like Register but panics on error. Use during startup wiring.
func (r *Registry) MustRegister(name string, fn Func, fatal bool, opts ...Option) {
	if err := r.Register(name, fn, fatal, opts...); err != nil {
		panic(err)
	}
}

// Override applies opts to an already registered stage. It is meant for
// declarative configuration loaded before any run starts.
func (r *Registry) Override(name string, opts ...Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.stages[name]
	if !ok {
		return fmt.Errorf("%w: %q", caseflow.ErrStageNotFound, name)
	}
	for _, o := range opts {
		o(&d)
	}
	r.stages[name] = d
	return nil
}

// Get returns a copy of the named definition.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.stages[name]
	if !ok {
		return nil, false
	}
	return &d, true
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stages[name]
	return ok
}

// Names returns all registered stage names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
