package codegen

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/intercept"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, src []byte) *ast.File {
	t.Helper()
	file, err := parser.ParseFile(token.NewFileSet(), "generated.go", src, parser.ParseComments)
	require.NoError(t, err, string(src))
	return file
}

// redeclarations type-checks src on its own and returns the redeclaration
// errors. Errors from symbols living outside the file are ignored.
func redeclarations(t *testing.T, src []byte) []string {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "generated.go", src, 0)
	require.NoError(t, err, string(src))

	var found []string
	conf := types.Config{Error: func(err error) {
		if strings.Contains(err.Error(), "redeclared") {
			found = append(found, err.Error())
		}
	}}
	_, _ = conf.Check(file.Name.Name, fset, []*ast.File{file}, nil)
	return found
}

func declaredFuncs(file *ast.File) []string {
	var names []string
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			names = append(names, fn.Name.Name)
		}
	}
	return names
}

func TestGenerate_InterfaceSubject(t *testing.T) {
	m := discoverSales(t, "InvoiceManagement")

	def, err := New(Config{}).Generate(m)
	require.NoError(t, err)

	assert.Equal(t, "InvoiceManagementInterceptor", def.TypeName)
	assert.Equal(t, "invoice_management_interceptor.go", def.FileName)
	assert.Equal(t, m.Type, def.SubjectType)

	file := parseSource(t, def.Source)
	assert.True(t, ast.IsGenerated(file))
	assert.Equal(t, "sales", file.Name.Name)
	assert.Equal(t, []string{
		"NewInvoiceManagementInterceptor", "SubjectType", "CallParent",
		"SetCapture", "GetCommentsList", "SetVoid", "PrepareInvoice", "Touch", "Tag", "Count", "Notify",
	}, declaredFuncs(file))

	src := string(def.Source)
	assert.Contains(t, src, "\tInvoiceManagement\n")
	assert.Regexp(t, `subjectType:\s+"example\.com/shop/sales\.InvoiceManagement",`, src)
	assert.Contains(t, src, `next, err := ic.pluginList.GetNext(ic.subjectType, "PrepareInvoice", "")`)
	assert.Contains(t, src, "return ic.InvoiceManagement.PrepareInvoice(ctx, order, qtys)")
	assert.Contains(t, src, `res, err := ic.invoker.Invoke(ic, "PrepareInvoice", []any{ctx, order, qtys}, next)`)
	assert.Contains(t, src, "return intercept.Result[*Invoice](res), err")
	assert.Contains(t, src, "intercept.Arg[map[int]float64](args, 2)")
	assert.Contains(t, src, "return ic.InvoiceManagement.Tag(labels...)")
	assert.Contains(t, src, "intercept.Arg[[]string](args, 0)...")
	assert.Contains(t, src, "func (ic *InvoiceManagementInterceptor) Touch(at time.Time) {")
	assert.Contains(t, src, "func (ic *InvoiceManagementInterceptor) Count() int {")
	assert.Contains(t, src, "return intercept.UnknownMethod(ic.subjectType, method)")
	assert.NotContains(t, src, "MarshalJSON")
}

func TestGenerate_StructSubject(t *testing.T) {
	m := discoverSales(t, "Repository")

	def, err := New(Config{Tool: "go generate"}).Generate(m)
	require.NoError(t, err)

	src := string(def.Source)
	assert.Contains(t, src, "// Code generated by go generate. DO NOT EDIT.")
	assert.Contains(t, src, "\t*Repository\n")
	assert.Contains(t, src, "func NewRepositoryInterceptor(subject *Repository, pluginList intercept.PluginList, invoker intercept.Invoker) *RepositoryInterceptor {")
	// The blank parameter gets a usable name.
	assert.Contains(t, src, "Find(p0 context.Context, id int) (*Invoice, error)")
	assert.Contains(t, src, "return ic.Repository.Ping(ctx)")
	parseSource(t, def.Source)
}

func TestGenerate_RenamesCollidingParameters(t *testing.T) {
	m := &intercept.TypeManifest{
		Type:        "example.com/x.Svc",
		PackageName: "x",
		Name:        "Svc",
		Kind:        intercept.KindInterface,
		Methods: []intercept.Method{{
			Name:   "Do",
			Params: []intercept.Param{{Name: "next", Type: "int"}, {Name: "err", Type: "error"}, {Type: "string"}},
		}},
	}

	def, err := New(Config{}).Generate(m)
	require.NoError(t, err)
	assert.Contains(t, string(def.Source), "Do(p0 int, p1 error, p2 string)")
	parseSource(t, def.Source)
}

func TestGenerate_FallbackNamesAvoidDeclaredParameters(t *testing.T) {
	m := &intercept.TypeManifest{
		Type:        "example.com/x.Svc",
		PackageName: "x",
		Name:        "Svc",
		Kind:        intercept.KindInterface,
		Methods: []intercept.Method{
			{Name: "Do", Params: []intercept.Param{{Name: "p1", Type: "int"}, {Name: "_", Type: "string"}}},
			{Name: "Run", Params: []intercept.Param{{Type: "int"}, {Name: "p0", Type: "string"}, {Name: "next", Type: "bool"}}},
		},
	}

	def, err := New(Config{}).Generate(m)
	require.NoError(t, err)
	src := string(def.Source)
	assert.Contains(t, src, "Do(p1 int, p2 string)")
	assert.Contains(t, src, "Run(p1 int, p0 string, p2 bool)")
	assert.Empty(t, redeclarations(t, def.Source), src)
}

func TestGenerate_InvalidTypeName(t *testing.T) {
	m := discoverSales(t, "InvoiceManagement")
	g := New(Config{Namer: func(name string) string { return name + "Proxy" }})

	def, err := g.Generate(m)
	assert.Nil(t, def)
	assert.ErrorIs(t, err, apperrors.ErrInvalidGeneratedTypeName)

	// Nothing was cached: a second attempt fails the same way.
	_, err = g.Generate(m)
	assert.ErrorIs(t, err, apperrors.ErrInvalidGeneratedTypeName)
}

func TestGenerate_RequiresManifest(t *testing.T) {
	_, err := New(Config{}).Generate(nil)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestGenerate_ConcurrentCallsShareDefinition(t *testing.T) {
	m := discoverSales(t, "InvoiceManagement")
	g := New(Config{})

	const n = 16
	defs := make([]*Definition, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			def, err := g.Generate(m)
			assert.NoError(t, err)
			defs[i] = def
		}()
	}
	wg.Wait()

	for _, def := range defs {
		assert.Same(t, defs[0], def)
	}
}

func TestGenerateAll(t *testing.T) {
	manifests := []*intercept.TypeManifest{
		discoverSales(t, "InvoiceManagement"),
		discoverSales(t, "Repository"),
		discoverSales(t, "Notifier"),
	}

	defs, err := New(Config{}).GenerateAll(context.Background(), manifests, 2)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "InvoiceManagementInterceptor", defs[0].TypeName)
	assert.Equal(t, "RepositoryInterceptor", defs[1].TypeName)
	assert.Equal(t, "NotifierInterceptor", defs[2].TypeName)
}

func TestGenerateAll_StopsOnError(t *testing.T) {
	manifests := []*intercept.TypeManifest{discoverSales(t, "Notifier"), {}}

	defs, err := New(Config{}).GenerateAll(context.Background(), manifests, 4)
	assert.Nil(t, defs)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestWriteAndLoadManifests(t *testing.T) {
	m := discoverSales(t, "InvoiceManagement")
	def, err := New(Config{}).Generate(m)
	require.NoError(t, err)

	srcDir, manifestDir := t.TempDir(), filepath.Join(t.TempDir(), "manifests")
	written, err := Write(def, srcDir, manifestDir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(srcDir, "invoice_management_interceptor.go"),
		filepath.Join(manifestDir, "example.com_shop_sales_InvoiceManagement.manifest.json"),
	}, written)

	loaded, err := LoadManifests(manifestDir)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, m, loaded[0])
}

func TestDecodeManifest_RequiresType(t *testing.T) {
	_, err := DecodeManifest([]byte(`{"name":"Svc"}`))
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = DecodeManifest([]byte(`{`))
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
