package diagnostics

import (
	"context"
	"errors"
	"testing"

	"github.com/leeforge/interception/chain"
	"github.com/leeforge/interception/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const subjectType = "github.com/acme/sales.InvoiceService"

type subject struct{}

func (subject) SubjectType() string { return subjectType }

func (subject) CallParent(string, []any) (any, error) { return "X", nil }

type source plugin.Chain

func (s source) Resolve(string, string) (plugin.Chain, error) { return plugin.Chain(s), nil }

var errDenied = errors.New("denied")

func testChain(failInner bool) plugin.Chain {
	return plugin.Chain{
		{
			Descriptor: plugin.Descriptor{Key: "A", SortOrder: plugin.Order(10)},
			Hooks: plugin.Hooks{
				Before: func(any, []any) ([]any, error) { return nil, nil },
				Around: func(_ any, proceed plugin.Proceed, args []any) (any, error) {
					return proceed(args)
				},
			},
		},
		{
			Descriptor: plugin.Descriptor{Key: "B", SortOrder: plugin.Order(20)},
			Hooks: plugin.Hooks{
				Before: func(any, []any) ([]any, error) {
					if failInner {
						return nil, errDenied
					}
					return nil, nil
				},
			},
		},
	}
}

func dispatch(t *testing.T, obs chain.Observer, failInner bool) (any, error) {
	t.Helper()
	c := testChain(failInner)
	d := chain.New(chain.Config{Source: source(c), Observer: obs})
	return d.Invoke(subject{}, "Notify", []any{context.Background()}, c[0])
}

func newOTel(t *testing.T) (*OTelObserver, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	obs, err := NewOTelObserver(OTelConfig{Tracer: tp.Tracer("test"), MeterProvider: mp})
	require.NoError(t, err)
	return obs, recorder, reader
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				label := ""
				if v, ok := dp.Attributes.Value("interception.outcome"); ok {
					label = v.AsString()
				} else if v, ok := dp.Attributes.Value("interception.plugin"); ok {
					label = v.AsString()
				}
				out[label] += dp.Value
			}
		}
	}
	return out
}

func TestOTelObserver_SpansNestLikeHooks(t *testing.T) {
	obs, recorder, reader := newOTel(t)

	res, err := dispatch(t, obs, false)
	require.NoError(t, err)
	assert.Equal(t, "X", res)

	spans := recorder.Ended()
	require.Len(t, spans, 4)
	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range spans {
		byName[s.Name()] = s
	}
	call := byName[subjectType+".Notify"]
	require.NotNil(t, call)

	assert.Equal(t, call.SpanContext().SpanID(), byName["plugin A before"].Parent().SpanID())
	assert.Equal(t, call.SpanContext().SpanID(), byName["plugin A around"].Parent().SpanID())
	assert.Equal(t, byName["plugin A around"].SpanContext().SpanID(), byName["plugin B before"].Parent().SpanID())
	assert.Equal(t, codes.Ok, call.Status().Code)

	assert.Equal(t, map[string]int64{"ok": 1}, collectSum(t, reader, "interception.calls"))
}

func TestOTelObserver_RecordsFailuresWithoutChangingThem(t *testing.T) {
	obs, recorder, reader := newOTel(t)

	_, err := dispatch(t, obs, true)
	assert.Same(t, errDenied, err)

	spans := recorder.Ended()
	require.Len(t, spans, 4)
	for _, s := range spans {
		if s.Name() == "plugin A before" {
			assert.Equal(t, codes.Unset, s.Status().Code)
			continue
		}
		assert.Equal(t, codes.Error, s.Status().Code, s.Name())
	}

	assert.Equal(t, map[string]int64{"error": 1}, collectSum(t, reader, "interception.calls"))
	assert.Equal(t, map[string]int64{"A": 1, "B": 1}, collectSum(t, reader, "interception.hook.failures"))
}

func TestLogObserver_AttachesCallID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	obs := NewLogObserver(zap.New(core))

	_, err := dispatch(t, obs, true)
	assert.Same(t, errDenied, err)

	failed := logs.FilterMessage("plugin hook failed").All()
	require.Len(t, failed, 2)

	first := failed[0].ContextMap()
	assert.Equal(t, "B", first["plugin"])
	assert.Equal(t, "before", first["phase"])
	assert.Equal(t, "Notify", first["method"])
	assert.NotEmpty(t, first["call_id"])

	finished := logs.FilterMessage("intercepted call failed").All()
	require.Len(t, finished, 1)
	assert.Equal(t, first["call_id"], finished[0].ContextMap()["call_id"])
}

func TestObservers_CombineLogAndTrace(t *testing.T) {
	otelObs, recorder, _ := newOTel(t)
	core, logs := observer.New(zapcore.DebugLevel)

	var seen string
	probe := probeObserver{onFinish: func(call *chain.Call) { seen = CallID(call) }}

	res, err := dispatch(t, chain.Observers{NewLogObserver(zap.New(core)), otelObs, probe}, false)
	require.NoError(t, err)
	assert.Equal(t, "X", res)

	assert.Len(t, recorder.Ended(), 4)
	started := logs.FilterMessage("intercepted call started").All()
	require.Len(t, started, 1)
	assert.Equal(t, started[0].ContextMap()["call_id"], seen)

	// Log lines emitted inside the call carry the trace ids of the call span.
	hookLogs := logs.FilterMessage("plugin hook finished").All()
	require.NotEmpty(t, hookLogs)
	assert.NotEmpty(t, hookLogs[0].ContextMap()["trace_id"])
}

type probeObserver struct {
	chain.NopObserver
	onFinish func(call *chain.Call)
}

func (p probeObserver) CallFinished(call *chain.Call, _ error) { p.onFinish(call) }
