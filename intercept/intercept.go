// Package intercept holds the contract between generated interceptors and the
// interception engine.
//
// A generated interceptor embeds its subject, captures the subject's logical
// type name at construction and routes every interceptable method through a
// PluginList and an Invoker:
//
//	next, err := i.pluginList.GetNext(i.subjectType, "Notify", "")
//	if next == nil {
//	    return i.InvoiceManagement.Notify(ctx, id)
//	}
//	res, err := i.invoker.Invoke(i, "Notify", []any{ctx, id}, next)
//
// Plugin lookup always uses the logical subject type, never the generated
// interceptor's own type.
package intercept

import (
	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/plugin"
)

// Subject is implemented by every generated interceptor.
type Subject interface {
	// SubjectType returns the logical type used for plugin lookup.
	SubjectType() string
	// CallParent invokes the original implementation of method.
	CallParent(method string, args []any) (any, error)
}

// PluginList finds the first (or next) link applicable to a method.
type PluginList interface {
	GetNext(subjectType, method, afterKey string) (*plugin.Link, error)
}

// Invoker executes a resolved chain starting at start.
type Invoker interface {
	Invoke(subject Subject, method string, args []any, start *plugin.Link) (any, error)
}

// Arg converts the i-th argument back to its declared type. A nil argument
// yields the zero value; a value of the wrong type panics.
func Arg[T any](args []any, i int) T {
	var zero T
	if i >= len(args) || args[i] == nil {
		return zero
	}
	return args[i].(T)
}

// Result converts a chain result back to the method's declared result type.
func Result[T any](v any) T {
	var zero T
	if v == nil {
		return zero
	}
	return v.(T)
}

// UnknownMethod is returned by CallParent for a method the subject does not
// route.
func UnknownMethod(subjectType, method string) error {
	return apperrors.NewInternal("method "+method+" is not interceptable on "+subjectType).
		WithDetail("type", subjectType).
		WithDetail("method", method)
}
