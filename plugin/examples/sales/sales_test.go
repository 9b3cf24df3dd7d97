package sales_test

import (
	"context"
	"os"
	"testing"

	"github.com/leeforge/interception/codegen"
	"github.com/leeforge/interception/config"
	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/plugin"
	"github.com/leeforge/interception/plugin/examples/audit"
	"github.com/leeforge/interception/plugin/examples/sales"
	"github.com/leeforge/interception/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	invoiceType  = "github.com/leeforge/interception/plugin/examples/sales.InvoiceManagement"
	notifierType = "github.com/leeforge/interception/plugin/examples/sales.Notifier"
)

var prices = map[int]float64{1: 10, 2: 5}

type fixture struct {
	service *sales.Service
	audit   *audit.AuditService
	invoice *sales.InvoiceManagementInterceptor
	runtime *runtime.Runtime
}

func descriptor(key, typ, method, instance string, order int) plugin.Descriptor {
	return plugin.Descriptor{Key: key, TargetType: typ, TargetMethod: method, Instance: instance, SortOrder: plugin.Order(order)}
}

func defaultScopes() []plugin.Scope {
	return []plugin.Scope{{
		Name: "global",
		Descriptors: []plugin.Descriptor{
			descriptor("audit", notifierType, plugin.AllMethods, "audit", 1),
			descriptor("validation", invoiceType, "PrepareInvoice", "validation", 10),
			descriptor("discount", invoiceType, "PrepareInvoice", "discount", 20),
			descriptor("cache", invoiceType, plugin.AllMethods, "cache", 30),
		},
	}}
}

func newFixture(t *testing.T, scopes []plugin.Scope, withManifest bool) *fixture {
	t.Helper()

	rt := runtime.NewRuntime(runtime.Config{
		Logger:   zap.NewNop(),
		Settings: &config.Settings{Scopes: scopes},
	})
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	auditService := audit.NewAuditService(nil)
	require.NoError(t, rt.Register("audit", audit.New(auditService)))
	require.NoError(t, rt.Register("validation", sales.OrderValidation{}))
	require.NoError(t, rt.Register("discount", sales.Discount{Rate: 0.1}))
	require.NoError(t, rt.Register("cache", sales.NewCommentCache()))

	if withManifest {
		m, err := codegen.Discover(".", "InvoiceManagement")
		require.NoError(t, err)
		rt.RegisterManifest(m)
	}
	require.NoError(t, rt.Bootstrap(context.Background()))

	svc := sales.NewService(prices)
	return &fixture{
		service: svc,
		audit:   auditService,
		invoice: sales.NewInvoiceManagementInterceptor(svc, rt.Registry(), rt.Dispatcher()),
		runtime: rt,
	}
}

func phases(entries []audit.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Method + " " + e.Phase.String()
	}
	return out
}

func TestGeneratedInterceptorIsUpToDate(t *testing.T) {
	m, err := codegen.Discover(".", "InvoiceManagement")
	require.NoError(t, err)
	assert.Equal(t, invoiceType, m.Type)
	assert.Equal(t, []string{notifierType}, m.Ancestors)
	assert.Equal(t, []string{"PrepareInvoice", "GetCommentsList", "SetVoid", "Total", "Notify"}, m.MethodNames())

	def, err := codegen.New(codegen.Config{}).Generate(m)
	require.NoError(t, err)
	assert.Equal(t, "invoice_management_interceptor.go", def.FileName)

	committed, err := os.ReadFile(def.FileName)
	require.NoError(t, err)
	assert.Equal(t, string(committed), string(def.Source), "run go generate ./plugin/examples/sales")
}

func TestPrepareInvoice_RunsChainInOrder(t *testing.T) {
	f := newFixture(t, defaultScopes(), true)

	inv, err := f.invoice.PrepareInvoice(context.Background(), 7, map[int]float64{1: 2, 2: 0, 3: -1})
	require.NoError(t, err)

	// validation dropped the non-positive quantities, discount took 10% off.
	assert.Equal(t, map[int]float64{1: 2}, inv.Items)
	assert.InDelta(t, 18.0, inv.Total, 1e-9)
	assert.Equal(t, 7, inv.Order)

	// The stored invoice is unchanged: the after hook replaced only the result.
	assert.InDelta(t, 20.0, f.invoice.InvoiceManagement.Total(inv.ID), 1e-9)

	assert.Equal(t, []string{"PrepareInvoice before", "PrepareInvoice after"}, phases(f.audit.Entries()))
	assert.Equal(t, invoiceType, f.audit.Entries()[0].Subject)
}

func TestPrepareInvoice_HookErrorSkipsOriginalAndAfterHooks(t *testing.T) {
	f := newFixture(t, defaultScopes(), true)

	inv, err := f.invoice.PrepareInvoice(context.Background(), 7, map[int]float64{1: 0})
	assert.Nil(t, inv)
	assert.Same(t, sales.ErrEmptyOrder, err)

	assert.Equal(t, []string{"PrepareInvoice before"}, phases(f.audit.Entries()))
	assert.Zero(t, f.service.Total(1))
}

func TestGetCommentsList_AroundHookShortCircuits(t *testing.T) {
	f := newFixture(t, defaultScopes(), true)
	ctx := context.Background()

	inv, err := f.invoice.PrepareInvoice(ctx, 1, map[int]float64{2: 1})
	require.NoError(t, err)

	first, err := f.invoice.GetCommentsList(ctx, inv.ID)
	require.NoError(t, err)
	second, err := f.invoice.GetCommentsList(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.service.CommentReads)

	require.NoError(t, f.invoice.SetVoid(ctx, inv.ID))

	third, err := f.invoice.GetCommentsList(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.service.CommentReads)
	assert.Contains(t, third, "voided")
}

func TestGetCommentsList_OriginalErrorIsReturnedUnchanged(t *testing.T) {
	f := newFixture(t, defaultScopes(), true)

	_, err := f.invoice.GetCommentsList(context.Background(), 42)
	assert.Same(t, sales.ErrInvoiceNotFound, err)
}

func TestEmptyChain_BehavesLikeDirectCall(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()

	inv, err := f.invoice.PrepareInvoice(ctx, 3, map[int]float64{1: 1, 2: 2})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, inv.Total, 1e-9)
	assert.InDelta(t, 20.0, f.invoice.Total(inv.ID), 1e-9)

	require.NoError(t, f.invoice.Notify(ctx, inv.ID))
	assert.Equal(t, []int{inv.ID}, f.service.Notified)

	_, err = f.invoice.PrepareInvoice(ctx, 3, map[int]float64{9: 1})
	assert.EqualError(t, err, "unknown product 9")
	assert.Empty(t, f.audit.Entries())
}

func TestHierarchy_AncestorPluginsApplyToSubject(t *testing.T) {
	f := newFixture(t, defaultScopes(), true)
	ctx := context.Background()

	inv, err := f.invoice.PrepareInvoice(ctx, 1, map[int]float64{1: 1})
	require.NoError(t, err)
	require.NoError(t, f.invoice.Notify(ctx, inv.ID))
	assert.InDelta(t, 10.0, f.invoice.Total(inv.ID), 1e-9)

	assert.Equal(t, []string{
		"PrepareInvoice before", "PrepareInvoice after",
		"Notify before", "Notify after",
		"Total before", "Total after",
	}, phases(f.audit.Entries()))
}

func TestHierarchy_UnknownWithoutManifest(t *testing.T) {
	f := newFixture(t, defaultScopes(), false)

	inv, err := f.invoice.PrepareInvoice(context.Background(), 1, map[int]float64{1: 1})
	require.NoError(t, err)
	assert.InDelta(t, 9.0, inv.Total, 1e-9)
	assert.Empty(t, f.audit.Entries())
}

func TestScopeOverride_DisablesPlugin(t *testing.T) {
	scopes := append(defaultScopes(), plugin.Scope{
		Name: "frontend",
		Descriptors: []plugin.Descriptor{
			{Key: "discount", TargetType: invoiceType, TargetMethod: plugin.AllMethods, SortOrder: plugin.Order(20), Disabled: true},
		},
	})
	f := newFixture(t, scopes, true)

	inv, err := f.invoice.PrepareInvoice(context.Background(), 1, map[int]float64{1: 1})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, inv.Total, 1e-9)
}

func TestResolutionError_PanicsForMethodsWithoutError(t *testing.T) {
	scopes := []plugin.Scope{{
		Name:        "global",
		Descriptors: []plugin.Descriptor{descriptor("ghost", invoiceType, plugin.AllMethods, "missing", 1)},
	}}
	f := newFixture(t, scopes, true)

	_, err := f.invoice.PrepareInvoice(context.Background(), 1, map[int]float64{1: 1})
	assert.ErrorIs(t, err, apperrors.ErrPluginResolution)

	assert.Panics(t, func() { f.invoice.Total(1) })
}
