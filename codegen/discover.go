package codegen

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/intercept"
	"golang.org/x/mod/modfile"
)

// DiscoverOptions selects the subject type to describe.
type DiscoverOptions struct {
	Dir      string
	TypeName string

	// ImportPath of the package in Dir. When empty it is derived from the
	// enclosing go.mod.
	ImportPath string
}

// Discover parses the Go package in dir and describes typeName.
func Discover(dir, typeName string) (*intercept.TypeManifest, error) {
	return DiscoverWith(DiscoverOptions{Dir: dir, TypeName: typeName})
}

// DiscoverWith parses opts.Dir and builds the manifest of opts.TypeName: its
// interceptable methods (declared and promoted from same-package embedded
// types) and its embedded types as ancestors.
func DiscoverWith(opts DiscoverOptions) (*intercept.TypeManifest, error) {
	pkg, err := parsePackage(opts.Dir)
	if err != nil {
		return nil, err
	}

	importPath := opts.ImportPath
	if importPath == "" {
		if importPath, err = importPathOf(opts.Dir); err != nil {
			return nil, err
		}
	}

	decl, ok := pkg.types[opts.TypeName]
	if !ok {
		return nil, apperrors.NewGeneration(apperrors.CodeSubjectNotFound,
			"type "+opts.TypeName+" not found in "+opts.Dir).
			WithDetail("type", opts.TypeName).
			WithDetail("dir", opts.Dir)
	}

	d := &discoverer{
		pkg:        pkg,
		importPath: importPath,
		imports:    make(map[string]struct{}),
		seen:       make(map[string]bool),
		visited:    make(map[string]bool),
		manifest: &intercept.TypeManifest{
			Type:        intercept.QualifiedName(importPath, opts.TypeName),
			Package:     importPath,
			PackageName: pkg.name,
			Name:        opts.TypeName,
		},
	}

	switch decl.spec.Type.(type) {
	case *ast.InterfaceType:
		d.manifest.Kind = intercept.KindInterface
	case *ast.StructType:
		d.manifest.Kind = intercept.KindStruct
	default:
		return nil, unsupported(opts.TypeName, "", "subject must be a struct or interface type")
	}
	if decl.spec.TypeParams != nil && len(decl.spec.TypeParams.List) > 0 {
		return nil, unsupported(opts.TypeName, "", "generic subject types are not supported")
	}

	if err := d.describe(opts.TypeName); err != nil {
		return nil, err
	}

	for spec := range d.imports {
		d.manifest.Imports = append(d.manifest.Imports, spec)
	}
	sort.Strings(d.manifest.Imports)
	return d.manifest, nil
}

type typeDecl struct {
	spec *ast.TypeSpec
	file *ast.File
}

type methodDecl struct {
	fn   *ast.FuncDecl
	file *ast.File
}

type parsedPackage struct {
	name    string
	types   map[string]typeDecl
	methods map[string][]methodDecl
}

// parsePackage reads the non-test, non-generated Go files in dir.
func parsePackage(dir string) (*parsedPackage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "failed to read "+dir).
			WithCode(apperrors.CodeSubjectNotFound)
	}

	pkg := &parsedPackage{
		types:   make(map[string]typeDecl),
		methods: make(map[string][]methodDecl),
	}
	fset := token.NewFileSet()

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}

		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.SkipObjectResolution|parser.ParseComments)
		if err != nil {
			return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "failed to parse "+name).
				WithCode(apperrors.CodeSubjectNotFound)
		}
		if ast.IsGenerated(file) {
			continue
		}
		if pkg.name == "" {
			pkg.name = file.Name.Name
		}

		for _, decl := range file.Decls {
			switch decl := decl.(type) {
			case *ast.GenDecl:
				if decl.Tok != token.TYPE {
					continue
				}
				for _, spec := range decl.Specs {
					ts := spec.(*ast.TypeSpec)
					pkg.types[ts.Name.Name] = typeDecl{spec: ts, file: file}
				}
			case *ast.FuncDecl:
				if recv := receiverName(decl); recv != "" {
					pkg.methods[recv] = append(pkg.methods[recv], methodDecl{fn: decl, file: file})
				}
			}
		}
	}

	if pkg.name == "" {
		return nil, apperrors.NewGeneration(apperrors.CodeSubjectNotFound, "no Go files in "+dir).
			WithDetail("dir", dir)
	}
	return pkg, nil
}

func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return id.Name
		}
	case *ast.IndexListExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

// importPathOf derives the import path of dir from the nearest go.mod.
func importPathOf(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "failed to resolve "+dir)
	}

	for modDir := abs; ; {
		data, err := os.ReadFile(filepath.Join(modDir, "go.mod"))
		if err == nil {
			modPath := modfile.ModulePath(data)
			if modPath == "" {
				break
			}
			rel, err := filepath.Rel(modDir, abs)
			if err != nil {
				return "", apperrors.WrapWithType(err, apperrors.ErrorTypeGeneration, "failed to resolve "+dir)
			}
			if rel == "." {
				return modPath, nil
			}
			return path.Join(modPath, filepath.ToSlash(rel)), nil
		}

		parent := filepath.Dir(modDir)
		if parent == modDir {
			break
		}
		modDir = parent
	}

	return "", apperrors.NewGeneration(apperrors.CodeSubjectNotFound,
		"cannot derive the import path of "+dir+": no go.mod found").
		WithDetail("dir", dir)
}

type discoverer struct {
	pkg        *parsedPackage
	importPath string
	manifest   *intercept.TypeManifest
	imports    map[string]struct{}

	// seen holds method names already described; shallower declarations win.
	seen map[string]bool
	// visited holds local types already walked.
	visited map[string]bool
}

// describe collects the methods of a local type, then those promoted from its
// embedded local types.
func (d *discoverer) describe(typeName string) error {
	if d.visited[typeName] {
		return nil
	}
	d.visited[typeName] = true

	decl := d.pkg.types[typeName]
	var embedded []ast.Expr

	switch t := decl.spec.Type.(type) {
	case *ast.InterfaceType:
		for _, field := range t.Methods.List {
			ft, ok := field.Type.(*ast.FuncType)
			if !ok {
				embedded = append(embedded, field.Type)
				continue
			}
			for _, name := range field.Names {
				if err := d.addMethod(name.Name, ft, decl.file); err != nil {
					return err
				}
			}
		}
	case *ast.StructType:
		for _, md := range d.pkg.methods[typeName] {
			if err := d.addMethod(md.fn.Name.Name, md.fn.Type, md.file); err != nil {
				return err
			}
		}
		for _, field := range t.Fields.List {
			if len(field.Names) == 0 {
				embedded = append(embedded, field.Type)
			}
		}
	default:
		return nil
	}

	var local []string
	for _, expr := range embedded {
		name, isLocal, err := d.ancestor(expr, decl.file)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		d.addAncestor(name)
		if isLocal {
			local = append(local, typeNameOf(expr))
		}
	}
	for _, name := range local {
		if _, ok := d.pkg.types[name]; ok {
			if err := d.describe(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *discoverer) addAncestor(name string) {
	for _, a := range d.manifest.Ancestors {
		if a == name {
			return
		}
	}
	d.manifest.Ancestors = append(d.manifest.Ancestors, name)
}

func typeNameOf(expr ast.Expr) string {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if id, ok := expr.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

// ancestor returns the qualified name of an embedded type, or "" for a
// predeclared one such as error.
func (d *discoverer) ancestor(expr ast.Expr, file *ast.File) (string, bool, error) {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	switch t := expr.(type) {
	case *ast.Ident:
		if types.Universe.Lookup(t.Name) != nil {
			return "", false, nil
		}
		return intercept.QualifiedName(d.importPath, t.Name), true, nil
	case *ast.SelectorExpr:
		pkgIdent, ok := t.X.(*ast.Ident)
		if !ok {
			break
		}
		spec, ok := resolveImport(file, pkgIdent.Name)
		if !ok {
			return "", false, unresolvedQualifier(d.manifest.Name, pkgIdent.Name)
		}
		return intercept.QualifiedName(spec.path, t.Sel.Name), false, nil
	}
	return "", false, unsupported(d.manifest.Name, "", "unsupported embedded type "+types.ExprString(expr))
}

func (d *discoverer) addMethod(name string, ft *ast.FuncType, file *ast.File) error {
	if !intercept.IsInterceptable(name) || d.seen[name] {
		return nil
	}
	d.seen[name] = true

	method := intercept.Method{Name: name}

	for _, field := range ft.Params.List {
		typ := field.Type
		variadic := false
		if ell, ok := typ.(*ast.Ellipsis); ok {
			variadic = true
			typ = ell.Elt
		}
		typeStr, err := d.typeString(typ, file)
		if err != nil {
			return err
		}

		if len(field.Names) == 0 {
			method.Params = append(method.Params, intercept.Param{Type: typeStr, Variadic: variadic})
			continue
		}
		for _, n := range field.Names {
			method.Params = append(method.Params, intercept.Param{Name: n.Name, Type: typeStr, Variadic: variadic})
		}
	}

	var results []ast.Expr
	if ft.Results != nil {
		for _, field := range ft.Results.List {
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			for range n {
				results = append(results, field.Type)
			}
		}
	}

	switch {
	case len(results) == 0:
	case len(results) == 1 && isError(results[0]):
		method.ReturnsError = true
	case len(results) == 1:
		typeStr, err := d.typeString(results[0], file)
		if err != nil {
			return err
		}
		method.Result = typeStr
	case len(results) == 2 && isError(results[1]) && !isError(results[0]):
		typeStr, err := d.typeString(results[0], file)
		if err != nil {
			return err
		}
		method.Result = typeStr
		method.ReturnsError = true
	default:
		return unsupported(d.manifest.Name, name,
			"results must be none, T, error or (T, error)")
	}

	d.manifest.Methods = append(d.manifest.Methods, method)
	return nil
}

func isError(expr ast.Expr) bool {
	id, ok := expr.(*ast.Ident)
	return ok && id.Name == "error"
}

// typeString renders a type expression and records the imports it uses.
func (d *discoverer) typeString(expr ast.Expr, file *ast.File) (string, error) {
	var err error
	ast.Inspect(expr, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkgIdent, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		spec, found := resolveImport(file, pkgIdent.Name)
		if !found {
			err = unresolvedQualifier(d.manifest.Name, pkgIdent.Name)
			return false
		}
		d.imports[spec.String()] = struct{}{}
		return false
	})
	if err != nil {
		return "", err
	}
	return types.ExprString(expr), nil
}

type importSpec struct {
	name string
	path string
}

// String renders the spec as "path", or "name path" when the local name
// differs from the guessed package name.
func (s importSpec) String() string {
	if s.name == guessPackageName(s.path) {
		return s.path
	}
	return s.name + " " + s.path
}

// resolveImport finds the import of file referred to by the qualifier name.
// Unnamed imports are matched by their guessed package name.
func resolveImport(file *ast.File, name string) (importSpec, bool) {
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		local := guessPackageName(p)
		if imp.Name != nil {
			local = imp.Name.Name
		}
		if local == name {
			return importSpec{name: name, path: p}, true
		}
	}
	return importSpec{}, false
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// guessPackageName derives a package name from an import path following the
// usual conventions: the last element, skipping a major version suffix, and
// dropping "go-" prefixes and ".vN" or "-go" suffixes.
func guessPackageName(importPath string) string {
	elems := strings.Split(importPath, "/")
	name := elems[len(elems)-1]
	if majorVersion.MatchString(name) && len(elems) > 1 {
		name = elems[len(elems)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	name = strings.TrimSuffix(name, "-go")
	return strings.ReplaceAll(name, "-", "")
}

func unsupported(typeName, method, reason string) error {
	err := apperrors.NewGeneration(apperrors.CodeUnsupportedSignature, reason).
		WithDetail("type", typeName)
	if method != "" {
		err = err.WithMessage(method + ": " + reason).WithDetail("method", method)
	}
	return err
}

func unresolvedQualifier(typeName, qualifier string) error {
	return apperrors.NewGeneration(apperrors.CodeUnsupportedSignature,
		"cannot resolve package qualifier "+qualifier+"; name the import explicitly").
		WithDetail("type", typeName).
		WithDetail("qualifier", qualifier)
}
