package plugin

// AllMethods is the TargetMethod wildcard matching every interceptable method.
const AllMethods = "*"

// Descriptor declares that a plugin instance intercepts methods of a target type.
// Descriptors are produced by the configuration collaborator and treated as
// immutable once handed to the registry.
type Descriptor struct {
	Key          string `mapstructure:"key" json:"key" yaml:"key" validate:"required"`
	TargetType   string `mapstructure:"type" json:"type" yaml:"type" validate:"required"`
	TargetMethod string `mapstructure:"method" json:"method" yaml:"method" default:"*"`
	Instance     string `mapstructure:"instance" json:"instance,omitempty" yaml:"instance"`
	Disabled     bool   `mapstructure:"disabled" json:"disabled" yaml:"disabled"`

	// SortOrder is nil when the declaration does not set one. A redeclaration
	// in a more specific scope then keeps the inherited order.
	SortOrder *int `mapstructure:"sort-order" json:"sortOrder,omitempty" yaml:"sort-order"`

	// Scope is filled in by the registry from the enclosing Scope.
	Scope string `mapstructure:"-" json:"scope,omitempty" yaml:"-"`
}

// Order returns n as a SortOrder value.
func Order(n int) *int {
	return &n
}

// Position returns the sort order, 0 when unset.
func (d Descriptor) Position() int {
	if d.SortOrder == nil {
		return 0
	}
	return *d.SortOrder
}

// Matches reports whether the descriptor applies to the given method name.
func (d Descriptor) Matches(method string) bool {
	return d.TargetMethod == "" || d.TargetMethod == AllMethods || d.TargetMethod == method
}

// Scope is one configuration area (e.g. "global", "frontend").
// Scopes are handed to the registry ordered from broadest to most specific.
type Scope struct {
	Name        string       `mapstructure:"name" json:"name" yaml:"name" validate:"required"`
	Descriptors []Descriptor `mapstructure:"plugins" json:"plugins" yaml:"plugins" validate:"dive"`
}

// Link is one resolved position in a chain: the merged descriptor together
// with the hooks its instance declares for the resolved method.
type Link struct {
	Descriptor
	Hooks Hooks

	chain Chain
	index int
}

// Snapshot returns the chain the link was resolved in and its position
// there. ok is false for links not built with NewChain.
func (l *Link) Snapshot() (chain Chain, index int, ok bool) {
	if l.chain == nil {
		return nil, -1, false
	}
	return l.chain, l.index, true
}

// Chain is the ordered list of links applicable to one (type, method) pair.
type Chain []*Link

// NewChain binds links into a chain. Every link keeps a reference to it, so
// a call started from any link walks the same chain even if the registry is
// reloaded meanwhile.
func NewChain(links []*Link) Chain {
	c := Chain(links)
	for i, l := range c {
		l.chain = c
		l.index = i
	}
	return c
}

// Index returns the position of the link with the given plugin key, or -1.
func (c Chain) Index(key string) int {
	for i, l := range c {
		if l.Key == key {
			return i
		}
	}
	return -1
}

// Next returns the link following afterKey. An empty afterKey yields the
// first link. It returns nil once the chain is exhausted.
func (c Chain) Next(afterKey string) *Link {
	if afterKey == "" {
		if len(c) == 0 {
			return nil
		}
		return c[0]
	}
	i := c.Index(afterKey)
	if i < 0 || i+1 >= len(c) {
		return nil
	}
	return c[i+1]
}

// Keys returns the plugin keys in chain order.
func (c Chain) Keys() []string {
	keys := make([]string, len(c))
	for i, l := range c {
		keys[i] = l.Key
	}
	return keys
}
