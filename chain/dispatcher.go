// Package chain executes a resolved plugin chain against a call.
//
// For each link, in sort order, the dispatcher runs the before hook, then
// either the around hook (handing it a proceed continuation that resumes
// the chain at the next link) or the next link directly, and finally the
// after hook on the way out. Links with a lower sort order are therefore
// outermost: their before hooks run first and their after hooks run last.
//
// A failing hook or original method aborts the chain: no further before or
// after hook runs and the error reaches the caller unchanged, unless an
// enclosing around hook handles it around its proceed call.
package chain

import (
	"context"
	"fmt"
	"sync/atomic"

	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/intercept"
	"github.com/leeforge/interception/plugin"
	"go.uber.org/zap"
)

// ChainSource resolves the chain for start links that carry no snapshot.
type ChainSource interface {
	Resolve(subjectType, method string) (plugin.Chain, error)
}

// Config holds configuration for creating a new Dispatcher.
type Config struct {
	Source   ChainSource
	Observer Observer
	Logger   *zap.Logger
}

// Dispatcher implements intercept.Invoker.
type Dispatcher struct {
	source   ChainSource
	observer Observer
	logger   *zap.Logger
}

var _ intercept.Invoker = (*Dispatcher)(nil)

// New creates a dispatcher reading chains from cfg.Source.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	return &Dispatcher{
		source:   cfg.Source,
		observer: cfg.Observer,
		logger:   cfg.Logger.Named("chain"),
	}
}

// Invoke runs method on subject through the chain starting at start. A nil
// start calls the original implementation directly. A start link handed out
// by the registry walks the chain it was resolved in; other links are looked
// up in the source.
func (d *Dispatcher) Invoke(subject intercept.Subject, method string, args []any, start *plugin.Link) (result any, err error) {
	if start == nil {
		return subject.CallParent(method, args)
	}

	subjectType := subject.SubjectType()
	chain, cursor, ok := start.Snapshot()
	if !ok {
		if chain, cursor, err = d.lookup(subjectType, method, start.Key); err != nil {
			return nil, err
		}
	}

	call := newCall(subject, subjectType, method, args)
	d.observer.CallStarted(call)
	defer func() {
		if r := recover(); r != nil {
			d.observer.CallFinished(call, panicError(r))
			panic(r)
		}
		d.observer.CallFinished(call, err)
	}()

	f := &frame{dispatcher: d, call: call, chain: chain}
	return f.run(cursor, args)
}

func (d *Dispatcher) lookup(subjectType, method, key string) (plugin.Chain, int, error) {
	var chain plugin.Chain
	if d.source != nil {
		var err error
		if chain, err = d.source.Resolve(subjectType, method); err != nil {
			return nil, -1, err
		}
	}

	cursor := chain.Index(key)
	if cursor < 0 {
		return nil, -1, apperrors.NewResolution(apperrors.CodeChainDescriptorMissing,
			"plugin "+key+" is not part of the chain for "+subjectType+"."+method).
			WithDetail("plugin", key).
			WithDetail("type", subjectType).
			WithDetail("method", method)
	}
	return chain, cursor, nil
}

// panicError reports a recovered panic to observers. The panic itself keeps
// propagating.
func panicError(r any) error {
	return apperrors.NewInternal(fmt.Sprintf("panic: %v", r))
}

// finishHook reports the end of a hook, including one that panicked.
func (f *frame) finishHook(link *plugin.Link, phase plugin.Phase, err *error) {
	if r := recover(); r != nil {
		f.dispatcher.observer.HookFinished(f.call, link, phase, panicError(r))
		panic(r)
	}
	f.dispatcher.observer.HookFinished(f.call, link, phase, *err)
}

// frame walks one call through the chain. cursor positions are indices into chain.
type frame struct {
	dispatcher *Dispatcher
	call       *Call
	chain      plugin.Chain
}

func (f *frame) run(cursor int, args []any) (any, error) {
	if cursor >= len(f.chain) {
		return f.call.Subject.CallParent(f.call.Method, args)
	}

	link := f.chain[cursor]
	hooks := link.Hooks

	if hooks.Before != nil {
		replaced, err := f.before(link, args)
		if err != nil {
			return nil, err
		}
		if replaced != nil {
			args = replaced
		}
	}

	var (
		result any
		err    error
	)
	if hooks.Around != nil {
		result, err = f.around(link, cursor, args)
	} else {
		result, err = f.run(cursor+1, args)
	}
	if err != nil {
		return nil, err
	}

	if hooks.After != nil {
		return f.after(link, result, args)
	}
	return result, nil
}

func (f *frame) before(link *plugin.Link, args []any) (replaced []any, err error) {
	f.dispatcher.observer.HookStarted(f.call, link, plugin.PhaseBefore)
	defer f.finishHook(link, plugin.PhaseBefore, &err)
	return link.Hooks.Before(f.call.Subject, args)
}

func (f *frame) around(link *plugin.Link, cursor int, args []any) (result any, err error) {
	f.dispatcher.observer.HookStarted(f.call, link, plugin.PhaseAround)
	defer f.finishHook(link, plugin.PhaseAround, &err)
	return link.Hooks.Around(f.call.Subject, f.proceed(link, cursor, args), args)
}

func (f *frame) after(link *plugin.Link, result any, args []any) (replaced any, err error) {
	f.dispatcher.observer.HookStarted(f.call, link, plugin.PhaseAfter)
	defer f.finishHook(link, plugin.PhaseAfter, &err)
	replaced, err = link.Hooks.After(f.call.Subject, result, args)
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

// proceed builds the continuation handed to link's around hook. It may be
// called once; nil arguments keep the frame's arguments.
func (f *frame) proceed(link *plugin.Link, cursor int, args []any) plugin.Proceed {
	var used atomic.Bool
	return func(next []any) (any, error) {
		if !used.CompareAndSwap(false, true) {
			f.dispatcher.logger.Warn("proceed called more than once",
				zap.String("plugin", link.Key),
				zap.String("type", f.call.SubjectType),
				zap.String("method", f.call.Method),
			)
			return nil, apperrors.NewProceedCalledTwice(link.Key, f.call.SubjectType+"."+f.call.Method)
		}
		if next == nil {
			next = args
		}
		return f.run(cursor+1, next)
	}
}

// Call describes one intercepted invocation. Observers may attach values to it.
type Call struct {
	Subject     intercept.Subject
	SubjectType string
	Method      string
	Args        []any

	// Context is the first argument when it is a context.Context, otherwise
	// context.Background(). Observers may replace it for nested hooks.
	Context context.Context

	values map[any]any
}

func newCall(subject intercept.Subject, subjectType, method string, args []any) *Call {
	ctx := context.Background()
	if len(args) > 0 {
		if c, ok := args[0].(context.Context); ok && c != nil {
			ctx = c
		}
	}
	return &Call{
		Subject:     subject,
		SubjectType: subjectType,
		Method:      method,
		Args:        args,
		Context:     ctx,
	}
}

// SetValue stores an observer value on the call.
func (c *Call) SetValue(key, value any) {
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

// Value returns a value stored with SetValue.
func (c *Call) Value(key any) any {
	return c.values[key]
}
