package intercept

import "go/token"

// Kind is the shape of a subject type.
type Kind string

const (
	KindStruct    Kind = "struct"
	KindInterface Kind = "interface"
)

// Param is one declared method parameter.
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Variadic bool   `json:"variadic,omitempty"`
}

// Method is one interceptable method of a subject type.
type Method struct {
	Name   string  `json:"name"`
	Params []Param `json:"params,omitempty"`
	// Result is the non-error result type, empty for none.
	Result string `json:"result,omitempty"`
	// ReturnsError is true when the last result is error.
	ReturnsError bool `json:"returnsError,omitempty"`
}

// TypeManifest describes a subject type's public contract. It is produced at
// build time and replaces any runtime introspection.
type TypeManifest struct {
	// Type is the fully-qualified logical type name, "<import path>.<Name>".
	Type string `json:"type"`
	// Package is the import path declaring the type.
	Package     string `json:"package"`
	PackageName string `json:"packageName"`
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	// Ancestors are the embedded types, fully qualified.
	Ancestors []string `json:"ancestors,omitempty"`
	Methods   []Method `json:"methods"`
	// Imports are the import specs the method signatures need, as written
	// in the source: a path, optionally preceded by its local name.
	Imports []string `json:"imports,omitempty"`
}

// Method returns the method with the given name.
func (m *TypeManifest) Method(name string) (Method, bool) {
	for _, method := range m.Methods {
		if method.Name == name {
			return method, true
		}
	}
	return Method{}, false
}

// MethodNames lists the interceptable method names in declaration order.
func (m *TypeManifest) MethodNames() []string {
	names := make([]string, len(m.Methods))
	for i, method := range m.Methods {
		names[i] = method.Name
	}
	return names
}

// reservedMethods are lifecycle hooks that are never intercepted:
// serialization and cloning, plus the interceptor contract itself.
var reservedMethods = map[string]struct{}{
	"MarshalJSON":     {},
	"UnmarshalJSON":   {},
	"MarshalText":     {},
	"UnmarshalText":   {},
	"MarshalBinary":   {},
	"UnmarshalBinary": {},
	"GobEncode":       {},
	"GobDecode":       {},
	"Clone":           {},
	"SubjectType":     {},
	"CallParent":      {},
}

// IsReserved reports whether name is a reserved lifecycle method.
func IsReserved(name string) bool {
	_, ok := reservedMethods[name]
	return ok
}

// IsInterceptable reports whether a method name can be intercepted.
// Unexported and reserved names are not.
func IsInterceptable(name string) bool {
	if name == "" || IsReserved(name) {
		return false
	}
	return token.IsExported(name)
}

// QualifiedName joins an import path and a type name.
func QualifiedName(pkgPath, name string) string {
	if pkgPath == "" {
		return name
	}
	return pkgPath + "." + name
}
