package plugin

// Proceed resumes the remaining chain from inside an around hook and returns
// the result of the inner frames (or of the original method).
type Proceed func(args []any) (any, error)

// BeforeFunc runs before the call. A non-nil returned slice replaces the
// arguments for the rest of the chain; nil keeps them unchanged.
type BeforeFunc func(subject any, args []any) ([]any, error)

// AroundFunc wraps the call. It may invoke proceed once or not at all.
type AroundFunc func(subject any, proceed Proceed, args []any) (any, error)

// AfterFunc runs once the inner frames returned. Its return value replaces
// the result.
type AfterFunc func(subject any, result any, args []any) (any, error)

// Hooks is the set of hooks a plugin declares for one method.
type Hooks struct {
	Before BeforeFunc
	Around AroundFunc
	After  AfterFunc
}

// IsEmpty returns true if no hook is declared.
func (h Hooks) IsEmpty() bool {
	return h.Before == nil && h.Around == nil && h.After == nil
}

// Phases lists the declared hook phases in execution order.
func (h Hooks) Phases() []Phase {
	phases := make([]Phase, 0, 3)
	if h.Before != nil {
		phases = append(phases, PhaseBefore)
	}
	if h.Around != nil {
		phases = append(phases, PhaseAround)
	}
	if h.After != nil {
		phases = append(phases, PhaseAfter)
	}
	return phases
}

// Plugin is the minimal interface every interception plugin must implement.
// Hooks is called once per resolved (type, method) pair, never per call.
type Plugin interface {
	Hooks(method string) Hooks
}

// --- Optional Capability Interfaces ---

// Named -- plugins reporting a human-readable name for diagnostics.
type Named interface {
	Name() string
}

// MethodHooks is a Plugin backed by a map of method name to hooks.
// The "*" entry applies to every method without an explicit entry.
type MethodHooks map[string]Hooks

// Hooks implements Plugin.
func (m MethodHooks) Hooks(method string) Hooks {
	if h, ok := m[method]; ok {
		return h
	}
	return m[AllMethods]
}

// Func adapts a function to the Plugin interface.
type Func func(method string) Hooks

// Hooks implements Plugin.
func (f Func) Hooks(method string) Hooks {
	return f(method)
}
