package codegen

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"strings"
	"sync"

	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/intercept"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Config holds configuration for creating a new Generator.
type Config struct {
	// Tool is named in the generated file header.
	Tool string

	// Namer returns the generated type name for a subject name. It defaults to
	// InterceptorName; any other result fails validation.
	Namer func(subjectName string) string

	Logger *zap.Logger
}

// Definition is one generated interceptor.
type Definition struct {
	SubjectType string
	TypeName    string
	FileName    string
	Source      []byte
	Manifest    *intercept.TypeManifest
}

// Generator renders interceptors. Definitions are cached per subject type and
// concurrent requests for the same subject share one rendering.
type Generator struct {
	tool   string
	namer  func(string) string
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Definition
	group singleflight.Group
}

// New creates a generator.
func New(cfg Config) *Generator {
	if cfg.Tool == "" {
		cfg.Tool = "interceptgen"
	}
	if cfg.Namer == nil {
		cfg.Namer = InterceptorName
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Generator{
		tool:   cfg.Tool,
		namer:  cfg.Namer,
		logger: cfg.Logger.Named("codegen"),
		cache:  make(map[string]*Definition),
	}
}

// Generate returns the interceptor definition for m. A failed validation or
// rendering yields no definition and is not cached.
func (g *Generator) Generate(m *intercept.TypeManifest) (*Definition, error) {
	if m == nil || m.Type == "" || m.Name == "" {
		return nil, apperrors.NewRequired("subject type")
	}

	g.mu.RLock()
	def, ok := g.cache[m.Type]
	g.mu.RUnlock()
	if ok {
		return def, nil
	}

	v, err, _ := g.group.Do(m.Type, func() (any, error) {
		g.mu.RLock()
		cached, ok := g.cache[m.Type]
		g.mu.RUnlock()
		if ok {
			return cached, nil
		}

		def, err := g.render(m)
		if err != nil {
			g.logger.Warn("interceptor generation failed", zap.String("type", m.Type), zap.Error(err))
			return nil, err
		}

		g.mu.Lock()
		g.cache[m.Type] = def
		g.mu.Unlock()

		g.logger.Debug("interceptor generated",
			zap.String("type", m.Type),
			zap.String("interceptor", def.TypeName),
			zap.Int("methods", len(m.Methods)),
		)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Definition), nil
}

// GenerateAll generates every manifest with at most workers concurrent
// renderings. Results keep the order of manifests; the first error cancels
// the remaining work.
func (g *Generator) GenerateAll(ctx context.Context, manifests []*intercept.TypeManifest, workers int) ([]*Definition, error) {
	if workers < 1 {
		workers = 1
	}

	defs := make([]*Definition, len(manifests))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, m := range manifests {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			def, err := g.Generate(m)
			if err != nil {
				return err
			}
			defs[i] = def
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return defs, nil
}

func (g *Generator) render(m *intercept.TypeManifest) (*Definition, error) {
	typeName := g.namer(m.Name)
	if err := ValidateName(m.Name, typeName); err != nil {
		return nil, err
	}

	view := newFileView(g.tool, typeName, m)
	var buf bytes.Buffer
	if err := interceptorTemplate.Execute(&buf, view); err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "failed to render "+m.Type)
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "generated source for "+m.Type+" does not parse").
			WithDetail("source", buf.String())
	}

	return &Definition{
		SubjectType: m.Type,
		TypeName:    typeName,
		FileName:    FileName(m.Name),
		Source:      src,
		Manifest:    m,
	}, nil
}

type fileView struct {
	Tool        string
	Package     string
	Imports     []string
	Subject     string
	SubjectType string
	TypeName    string
	Constructor string
	Embed       string
	Methods     []methodView
}

type methodView struct {
	Name          string
	Params        string
	Results       string
	ParentCall    string
	OnLookupError string
	Direct        string
	ViaChain      string
}

func newFileView(tool, typeName string, m *intercept.TypeManifest) fileView {
	view := fileView{
		Tool:        tool,
		Package:     m.PackageName,
		Subject:     m.Name,
		SubjectType: m.Type,
		TypeName:    typeName,
		Constructor: "New" + typeName,
		Embed:       m.Name,
	}
	if m.Kind == intercept.KindStruct {
		view.Embed = "*" + m.Name
	}

	for _, spec := range m.Imports {
		if name, p, ok := strings.Cut(spec, " "); ok {
			view.Imports = append(view.Imports, name+" "+fmt.Sprintf("%q", p))
			continue
		}
		view.Imports = append(view.Imports, fmt.Sprintf("%q", spec))
	}

	for _, method := range m.Methods {
		view.Methods = append(view.Methods, newMethodView(m.Name, method))
	}
	return view
}

// localNames are identifiers used by generated method bodies.
var localNames = map[string]bool{
	"ic": true, "next": true, "err": true, "res": true, "zero": true,
	"args": true, "method": true, "intercept": true,
}

// freeName returns the first of p<i>, p<i+1>, ... not in used.
func freeName(used map[string]bool, i int) string {
	for ; ; i++ {
		if name := fmt.Sprintf("p%d", i); !used[name] && !localNames[name] {
			return name
		}
	}
}

func newMethodView(subject string, method intercept.Method) methodView {
	var (
		params     []string
		callArgs   []string
		argsSlice  []string
		parentArgs []string
		used       = make(map[string]bool)
	)

	// Declared names are reserved first so a fallback never shadows a later one.
	keep := make([]bool, len(method.Params))
	for i, p := range method.Params {
		if p.Name != "" && p.Name != "_" && !localNames[p.Name] && !used[p.Name] {
			keep[i] = true
			used[p.Name] = true
		}
	}

	for i, p := range method.Params {
		name := p.Name
		if !keep[i] {
			name = freeName(used, i)
			used[name] = true
		}

		if p.Variadic {
			params = append(params, name+" ..."+p.Type)
			callArgs = append(callArgs, name+"...")
			parentArgs = append(parentArgs, fmt.Sprintf("intercept.Arg[[]%s](args, %d)...", p.Type, i))
		} else {
			params = append(params, name+" "+p.Type)
			callArgs = append(callArgs, name)
			parentArgs = append(parentArgs, fmt.Sprintf("intercept.Arg[%s](args, %d)", p.Type, i))
		}
		argsSlice = append(argsSlice, name)
	}

	direct := fmt.Sprintf("ic.%s.%s(%s)", subject, method.Name, strings.Join(callArgs, ", "))
	parent := fmt.Sprintf("ic.%s.%s(%s)", subject, method.Name, strings.Join(parentArgs, ", "))
	invoke := fmt.Sprintf("ic.invoker.Invoke(ic, %q, []any{%s}, next)", method.Name, strings.Join(argsSlice, ", "))

	v := methodView{Name: method.Name, Params: strings.Join(params, ", ")}

	switch {
	case method.Result != "" && method.ReturnsError:
		v.Results = "(" + method.Result + ", error)"
		v.ParentCall = "return " + parent
		v.OnLookupError = "var zero " + method.Result + "\n\t\treturn zero, err"
		v.Direct = "return " + direct
		v.ViaChain = "res, err := " + invoke + "\n\treturn intercept.Result[" + method.Result + "](res), err"
	case method.Result != "":
		v.Results = method.Result
		v.ParentCall = "return " + parent + ", nil"
		v.OnLookupError = "panic(err)"
		v.Direct = "return " + direct
		v.ViaChain = "res, err := " + invoke + "\n\tif err != nil {\n\t\tpanic(err)\n\t}\n\treturn intercept.Result[" + method.Result + "](res)"
	case method.ReturnsError:
		v.Results = "error"
		v.ParentCall = "return nil, " + parent
		v.OnLookupError = "return err"
		v.Direct = "return " + direct
		v.ViaChain = "_, err = " + invoke + "\n\treturn err"
	default:
		v.ParentCall = parent + "\n\t\treturn nil, nil"
		v.OnLookupError = "panic(err)"
		v.Direct = direct + "\n\t\treturn"
		v.ViaChain = "if _, err := " + invoke + "; err != nil {\n\t\tpanic(err)\n\t}"
	}
	return v
}
