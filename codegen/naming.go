package codegen

import (
	"strings"
	"unicode"

	apperrors "github.com/leeforge/interception/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EntityType is the kind of code this package generates.
const EntityType = "interceptor"

// entitySuffix is computed once; a cases.Caser must not be shared between goroutines.
var entitySuffix = cases.Title(language.Und).String(EntityType)

// InterceptorName returns the conventional generated type name for a subject
// type name: the subject name followed by the title-cased entity type.
func InterceptorName(subjectName string) string {
	return subjectName + entitySuffix
}

// ConstructorName returns the name of the generated constructor.
func ConstructorName(subjectName string) string {
	return "New" + InterceptorName(subjectName)
}

// FileName returns the file the interceptor for subjectName is written to,
// e.g. "invoice_management_interceptor.go".
func FileName(subjectName string) string {
	return snakeCase(subjectName) + "_" + EntityType + ".go"
}

// ManifestFileName returns the manifest file name for a fully qualified subject type.
func ManifestFileName(subjectType string) string {
	r := strings.NewReplacer("/", "_", ".", "_")
	return r.Replace(subjectType) + ".manifest.json"
}

// ValidateName rejects a generated type name that differs from the naming
// convention for subjectName.
func ValidateName(subjectName, typeName string) error {
	want := InterceptorName(subjectName)
	if typeName != want {
		return apperrors.NewInvalidGeneratedTypeName(typeName, want).
			WithDetail("subject", subjectName)
	}
	return nil
}

func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
