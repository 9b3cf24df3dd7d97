package plugin

// Phase identifies which hook of a link is running.
type Phase int

const (
	PhaseBefore Phase = iota // before hook, may rewrite arguments
	PhaseAround              // around hook, owns the proceed continuation
	PhaseAfter               // after hook, may rewrite the result
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseAround:
		return "around"
	case PhaseAfter:
		return "after"
	default:
		return "unknown"
	}
}

// Wraps returns true if the phase encloses the inner frames.
func (p Phase) Wraps() bool {
	return p == PhaseAround
}
