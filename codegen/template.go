package codegen

import "text/template"

var interceptorTemplate = template.Must(template.New("interceptor").Parse(`// Code generated by {{.Tool}}. DO NOT EDIT.

package {{.Package}}

import (
{{- range .Imports}}
	{{.}}
{{- end}}

	"github.com/leeforge/interception/intercept"
)

// {{.TypeName}} routes the interceptable methods of {{.Subject}} through the
// plugins configured for {{.SubjectType}}.
type {{.TypeName}} struct {
	{{.Embed}}

	subjectType string
	pluginList  intercept.PluginList
	invoker     intercept.Invoker
}

// {{.Constructor}} wraps subject.
func {{.Constructor}}(subject {{.Embed}}, pluginList intercept.PluginList, invoker intercept.Invoker) *{{.TypeName}} {
	return &{{.TypeName}}{
		{{.Subject}}: subject,
		subjectType: {{printf "%q" .SubjectType}},
		pluginList: pluginList,
		invoker: invoker,
	}
}

// SubjectType implements intercept.Subject.
func (ic *{{.TypeName}}) SubjectType() string {
	return ic.subjectType
}

// CallParent implements intercept.Subject.
func (ic *{{.TypeName}}) CallParent(method string, args []any) (any, error) {
	switch method {
{{- range .Methods}}
	case {{printf "%q" .Name}}:
		{{.ParentCall}}
{{- end}}
	}
	return nil, intercept.UnknownMethod(ic.subjectType, method)
}
{{range .Methods}}
// {{.Name}} implements {{$.Subject}}.
func (ic *{{$.TypeName}}) {{.Name}}({{.Params}}) {{.Results}} {
	next, err := ic.pluginList.GetNext(ic.subjectType, {{printf "%q" .Name}}, "")
	if err != nil {
		{{.OnLookupError}}
	}
	if next == nil {
		{{.Direct}}
	}
	{{.ViaChain}}
}
{{end -}}
`))
