package tasks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stuxbench/stux/internal/logger"
)

// Registry provides thread-safe access to the catalog of benchmark tasks.
//
// The registry maps task IDs to their specifications. Builtin tasks register
// themselves via init() functions in their own packages; tasks loaded from
// configuration are added on top and may override builtins of the same ID.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*Spec),
	}
}

// Register adds a task spec to the registry.
//
// Registering an ID that already exists replaces the previous spec; this is
// how tasks.yaml entries override builtin defaults.
func (r *Registry) Register(spec *Spec) error {
	if spec == nil {
		return fmt.Errorf("task spec cannot be nil")
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid task spec: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.ID]; exists {
		logger.Debug("Overriding task spec: %s", spec.ID)
	}
	r.specs[spec.ID] = spec
	return nil
}

// Get returns the spec for the given task ID.
func (r *Registry) Get(id string) (*Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, exists := r.specs[id]
	if !exists {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	return spec, nil
}

// List returns all registered task specs sorted by ID.
func (r *Registry) List() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		result = append(result, spec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// defaultRegistry is the process-wide registry that builtin tasks populate
// from their init() functions.
var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide task registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// RegisterSpec registers a task spec with the default registry.
//
// Intended for init() functions of builtin task packages; registration
// failures there indicate a programming error and panic.
func RegisterSpec(spec *Spec) {
	if err := DefaultRegistry().Register(spec); err != nil {
		panic(fmt.Sprintf("failed to register builtin task: %v", err))
	}
}
