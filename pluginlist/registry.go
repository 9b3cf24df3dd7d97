// Package pluginlist resolves and caches the ordered plugin chain applying to
// a (subject type, method) pair.
//
// Descriptors arrive grouped by configuration scope, broadest first. The
// registry merges scopes by plugin key, walks the subject's type hierarchy,
// drops disabled descriptors and sorts the rest by sort order with
// declaration order as tie-break. Each chain is computed at most once per
// key and cached until Invalidate or Reload.
package pluginlist

import (
	"strconv"
	"sync"

	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/plugin"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Config holds configuration for creating a new Registry.
type Config struct {
	Scopes    []plugin.Scope
	Instances plugin.Locator
	Hierarchy Hierarchy
	Logger    *zap.Logger
}

// Stats is a snapshot of the registry caches.
type Stats struct {
	Generation   uint64
	CachedChains int
	Descriptors  int
}

type cacheKey struct {
	subjectType string
	method      string
}

// state is one immutable configuration generation.
type state struct {
	scopes []plugin.Scope
	merge  func() (*merged, error)
}

func newState(scopes []plugin.Scope) *state {
	return &state{
		scopes: scopes,
		merge: sync.OnceValues(func() (*merged, error) {
			return mergeScopes(scopes)
		}),
	}
}

// Registry resolves plugin chains. It is safe for concurrent use; lookups of
// an already resolved chain only take a read lock.
type Registry struct {
	instances plugin.Locator
	hierarchy Hierarchy
	logger    *zap.Logger

	mu         sync.RWMutex
	state      *state
	chains     map[cacheKey]plugin.Chain
	generation uint64

	group singleflight.Group
}

// New creates a registry. Scope merging is deferred to the first Resolve;
// call Validate to surface configuration errors early.
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Hierarchy == nil {
		cfg.Hierarchy = noHierarchy{}
	}
	if cfg.Instances == nil {
		cfg.Instances = plugin.NewInstanceRegistry()
	}

	return &Registry{
		instances: cfg.Instances,
		hierarchy: cfg.Hierarchy,
		logger:    cfg.Logger.Named("pluginlist"),
		state:     newState(cfg.Scopes),
		chains:    make(map[cacheKey]plugin.Chain),
	}
}

// Validate merges the configured scopes and reports any inconsistency.
func (r *Registry) Validate() error {
	r.mu.RLock()
	st := r.state
	r.mu.RUnlock()

	_, err := st.merge()
	return err
}

// Resolve returns the ordered chain for subjectType.method. The result is
// shared and must not be modified.
func (r *Registry) Resolve(subjectType, method string) (plugin.Chain, error) {
	key := cacheKey{subjectType: subjectType, method: method}

	r.mu.RLock()
	chain, ok := r.chains[key]
	st, gen := r.state, r.generation
	r.mu.RUnlock()
	if ok {
		return chain, nil
	}

	flightKey := strconv.FormatUint(gen, 10) + "\x00" + subjectType + "\x00" + method
	v, err, _ := r.group.Do(flightKey, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.chains[key]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		chain, err := r.compute(st, subjectType, method)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.generation == gen {
			r.chains[key] = chain
		}
		r.mu.Unlock()

		r.logger.Debug("plugin chain resolved",
			zap.String("type", subjectType),
			zap.String("method", method),
			zap.Strings("plugins", chain.Keys()),
		)
		return chain, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(plugin.Chain), nil
}

// GetNext returns the first link of the chain when afterKey is empty,
// otherwise the link following afterKey. It returns nil when the chain is
// exhausted.
func (r *Registry) GetNext(subjectType, method, afterKey string) (*plugin.Link, error) {
	chain, err := r.Resolve(subjectType, method)
	if err != nil {
		return nil, err
	}
	if afterKey != "" && chain.Index(afterKey) < 0 {
		return nil, apperrors.NewResolution(apperrors.CodeChainDescriptorMissing,
			"plugin "+afterKey+" is not part of the chain for "+subjectType+"."+method).
			WithDetail("plugin", afterKey).
			WithDetail("type", subjectType).
			WithDetail("method", method)
	}
	return chain.Next(afterKey), nil
}

// Invalidate drops every cached chain. In-flight resolutions started before
// the call do not repopulate the cache.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

// Reload replaces the configured scopes and invalidates the cache. The new
// scopes are validated first; on error the registry keeps its old state.
func (r *Registry) Reload(scopes []plugin.Scope) error {
	next := newState(scopes)
	if _, err := next.merge(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = next
	r.invalidateLocked()
	r.logger.Info("plugin configuration reloaded", zap.Int("scopes", len(scopes)))
	return nil
}

func (r *Registry) invalidateLocked() {
	r.generation++
	r.chains = make(map[cacheKey]plugin.Chain)
}

// Stats returns a snapshot of the cache.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Generation: r.generation, CachedChains: len(r.chains)}
	if m, err := r.state.merge(); err == nil {
		s.Descriptors = m.count
	}
	return s
}

func (r *Registry) compute(st *state, subjectType, method string) (plugin.Chain, error) {
	m, err := st.merge()
	if err != nil {
		return nil, err
	}

	types := append([]string{subjectType}, r.hierarchy.Ancestors(subjectType)...)
	decls := m.collect(types, method)

	chain := make([]*plugin.Link, 0, len(decls))
	for _, decl := range decls {
		p, ok := r.instances.Get(decl.Instance)
		if !ok {
			return nil, apperrors.NewUnknownInstance(decl.Key, decl.Instance).
				WithDetail("type", subjectType).
				WithDetail("method", method)
		}

		hooks := p.Hooks(method)
		if hooks.IsEmpty() {
			continue
		}
		chain = append(chain, &plugin.Link{Descriptor: decl.Descriptor, Hooks: hooks})
	}
	return plugin.NewChain(chain), nil
}
