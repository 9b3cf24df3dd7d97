package pluginlist

import (
	"sync"

	"github.com/leeforge/interception/intercept"
)

// Hierarchy reports the ancestors (embedded types and declared interfaces)
// of a subject type.
type Hierarchy interface {
	Ancestors(typeName string) []string
}

// Catalog is a Hierarchy built from generated type manifests.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]*intercept.TypeManifest
}

// NewCatalog creates a catalog holding the given manifests.
func NewCatalog(manifests ...*intercept.TypeManifest) *Catalog {
	c := &Catalog{
		types: make(map[string]*intercept.TypeManifest, len(manifests)),
	}
	for _, m := range manifests {
		c.Register(m)
	}
	return c
}

// Register adds or replaces a manifest.
func (c *Catalog) Register(m *intercept.TypeManifest) {
	if m == nil || m.Type == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[m.Type] = m
}

// Manifest returns the manifest registered for typeName.
func (c *Catalog) Manifest(typeName string) (*intercept.TypeManifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.types[typeName]
	return m, ok
}

// Ancestors returns the transitive ancestors of typeName, breadth first, each
// listed once. Types without a manifest have no known ancestors.
func (c *Catalog) Ancestors(typeName string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	seen := map[string]struct{}{typeName: {}}
	queue := []string{typeName}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		m, ok := c.types[current]
		if !ok {
			continue
		}
		for _, parent := range m.Ancestors {
			if _, dup := seen[parent]; dup {
				continue
			}
			seen[parent] = struct{}{}
			out = append(out, parent)
			queue = append(queue, parent)
		}
	}
	return out
}

// noHierarchy is used when the registry is built without a catalog.
type noHierarchy struct{}

func (noHierarchy) Ancestors(string) []string { return nil }
