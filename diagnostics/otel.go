package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/leeforge/interception/chain"
	"github.com/leeforge/interception/plugin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer and meter used by OTelObserver.
const InstrumentationName = "github.com/leeforge/interception"

// OTelConfig configures an OTelObserver. Nil fields fall back to the global
// providers.
type OTelConfig struct {
	Tracer        trace.Tracer
	MeterProvider metric.MeterProvider
}

// OTelObserver opens a span per intercepted call and a child span per hook,
// and records call counts and hook durations.
type OTelObserver struct {
	tracer trace.Tracer

	calls        metric.Int64Counter
	hookFailures metric.Int64Counter
	hookDuration metric.Float64Histogram
}

var _ chain.Observer = (*OTelObserver)(nil)

type spanFrame struct {
	ctx   context.Context
	span  trace.Span
	start time.Time
}

type spanStackKey struct{}

// NewOTelObserver creates the observer and its metric instruments.
func NewOTelObserver(cfg OTelConfig) (*OTelObserver, error) {
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(InstrumentationName)
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	meter := cfg.MeterProvider.Meter(InstrumentationName)

	o := &OTelObserver{tracer: cfg.Tracer}
	var err error

	o.calls, err = meter.Int64Counter(
		"interception.calls",
		metric.WithDescription("Number of intercepted calls dispatched through a plugin chain"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create calls counter: %w", err)
	}

	o.hookFailures, err = meter.Int64Counter(
		"interception.hook.failures",
		metric.WithDescription("Number of plugin hooks that returned an error"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create hook failures counter: %w", err)
	}

	o.hookDuration, err = meter.Float64Histogram(
		"interception.hook.duration",
		metric.WithDescription("Plugin hook duration in milliseconds, including nested hooks for around"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create hook duration histogram: %w", err)
	}

	return o, nil
}

func (o *OTelObserver) CallStarted(call *chain.Call) {
	ctx, span := o.tracer.Start(call.Context, call.SubjectType+"."+call.Method,
		trace.WithAttributes(
			attribute.String("interception.type", call.SubjectType),
			attribute.String("interception.method", call.Method),
		),
	)
	o.push(call, spanFrame{ctx: ctx, span: span, start: time.Now()})
	call.Context = ctx
}

func (o *OTelObserver) HookStarted(call *chain.Call, link *plugin.Link, phase plugin.Phase) {
	ctx, span := o.tracer.Start(o.top(call), "plugin "+link.Key+" "+phase.String(),
		trace.WithAttributes(
			attribute.String("interception.plugin", link.Key),
			attribute.String("interception.phase", phase.String()),
			attribute.Int("interception.sort_order", link.Position()),
		),
	)
	o.push(call, spanFrame{ctx: ctx, span: span, start: time.Now()})
}

func (o *OTelObserver) HookFinished(call *chain.Call, link *plugin.Link, phase plugin.Phase, err error) {
	f, ok := o.pop(call)
	if !ok {
		return
	}
	defer f.span.End()

	attrs := metric.WithAttributes(
		attribute.String("interception.type", call.SubjectType),
		attribute.String("interception.method", call.Method),
		attribute.String("interception.plugin", link.Key),
		attribute.String("interception.phase", phase.String()),
	)
	o.hookDuration.Record(f.ctx, float64(time.Since(f.start).Microseconds())/1000, attrs)

	if err != nil {
		f.span.RecordError(err)
		f.span.SetStatus(codes.Error, err.Error())
		o.hookFailures.Add(f.ctx, 1, attrs)
	}
}

func (o *OTelObserver) CallFinished(call *chain.Call, err error) {
	f, ok := o.pop(call)
	if !ok {
		return
	}
	defer f.span.End()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		f.span.RecordError(err)
		f.span.SetStatus(codes.Error, err.Error())
	} else {
		f.span.SetStatus(codes.Ok, "")
	}

	o.calls.Add(f.ctx, 1, metric.WithAttributes(
		attribute.String("interception.type", call.SubjectType),
		attribute.String("interception.method", call.Method),
		attribute.String("interception.outcome", outcome),
	))
}

func (o *OTelObserver) stack(call *chain.Call) []spanFrame {
	s, _ := call.Value(spanStackKey{}).([]spanFrame)
	return s
}

func (o *OTelObserver) push(call *chain.Call, f spanFrame) {
	call.SetValue(spanStackKey{}, append(o.stack(call), f))
}

func (o *OTelObserver) pop(call *chain.Call) (spanFrame, bool) {
	s := o.stack(call)
	if len(s) == 0 {
		return spanFrame{}, false
	}
	f := s[len(s)-1]
	call.SetValue(spanStackKey{}, s[:len(s)-1])
	return f, true
}

func (o *OTelObserver) top(call *chain.Call) context.Context {
	if s := o.stack(call); len(s) > 0 {
		return s[len(s)-1].ctx
	}
	return call.Context
}
