package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Locator turns a descriptor's instance reference into a plugin instance.
type Locator interface {
	Get(ref string) (Plugin, bool)
}

// InstanceRegistry holds plugin instances keyed by their instance reference
// (e.g. "audit.invoice_logger"). Instances are expected to be stateless or
// to synchronize their own state.
type InstanceRegistry struct {
	instances map[string]Plugin
	mu        sync.RWMutex
}

// NewInstanceRegistry creates an empty instance registry.
func NewInstanceRegistry() *InstanceRegistry {
	return &InstanceRegistry{
		instances: make(map[string]Plugin),
	}
}

// Register stores an instance. Returns error if ref already exists.
func (r *InstanceRegistry) Register(ref string, p Plugin) error {
	if ref == "" {
		return fmt.Errorf("plugin instance ref cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("plugin instance %q is nil", ref)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[ref]; exists {
		return fmt.Errorf("plugin instance %q already registered", ref)
	}
	r.instances[ref] = p
	return nil
}

// MustRegister stores an instance, panicking on duplicate.
func (r *InstanceRegistry) MustRegister(ref string, p Plugin) {
	if err := r.Register(ref, p); err != nil {
		panic(err)
	}
}

// Get implements Locator.
func (r *InstanceRegistry) Get(ref string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.instances[ref]
	return p, ok
}

// Has returns true if an instance is registered under the given ref.
func (r *InstanceRegistry) Has(ref string) bool {
	_, ok := r.Get(ref)
	return ok
}

// Refs returns all registered instance refs, sorted alphabetically.
func (r *InstanceRegistry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.instances))
	for k := range r.instances {
		refs = append(refs, k)
	}
	sort.Strings(refs)
	return refs
}

// Instance retrieves a plugin instance with its concrete type.
func Instance[T Plugin](l Locator, ref string) (T, error) {
	var zero T
	p, ok := l.Get(ref)
	if !ok {
		return zero, fmt.Errorf("plugin instance %q not found", ref)
	}

	typed, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("plugin instance %q is %T, want %T", ref, p, zero)
	}
	return typed, nil
}
