package pluginlist

import (
	"sort"

	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/plugin"
)

// declaration is a merged descriptor plus its position in declaration order.
type declaration struct {
	plugin.Descriptor
	order int
}

// merged is the scope-merged view of every descriptor, keyed by plugin key.
type merged struct {
	byType map[string][]*declaration
	count  int
}

// mergeScopes folds scopes from broadest to most specific. A key redeclared
// in a later scope overrides Disabled of the earlier one, and SortOrder when
// it sets one, and keeps its original declaration position. Within a single
// scope a key may only repeat with the same SortOrder.
func mergeScopes(scopes []plugin.Scope) (*merged, error) {
	errs := apperrors.NewErrorChain()
	byKey := make(map[string]*declaration)
	var ordered []*declaration

	for _, scope := range scopes {
		seenInScope := make(map[string]*int)

		for _, d := range scope.Descriptors {
			if err := validateDescriptor(scope.Name, d); err != nil {
				errs.Add(err)
				continue
			}
			d.Scope = scope.Name
			if d.TargetMethod == "" {
				d.TargetMethod = plugin.AllMethods
			}

			if prev, ok := seenInScope[d.Key]; ok && prev != nil && d.SortOrder != nil && *prev != *d.SortOrder {
				errs.Add(apperrors.NewConflictingSortOrder(scope.Name, d.Key, *prev, *d.SortOrder))
				continue
			}
			if d.SortOrder != nil || seenInScope[d.Key] == nil {
				seenInScope[d.Key] = d.SortOrder
			}

			existing, ok := byKey[d.Key]
			if !ok {
				if d.Instance == "" {
					errs.Add(apperrors.NewRequired("plugin instance").
						WithDetail("scope", scope.Name).
						WithDetail("plugin", d.Key))
					continue
				}
				d.SortOrder = plugin.Order(d.Position())
				decl := &declaration{Descriptor: d, order: len(ordered)}
				byKey[d.Key] = decl
				ordered = append(ordered, decl)
				continue
			}

			if err := checkRedeclaration(existing.Descriptor, d); err != nil {
				errs.Add(err)
				continue
			}
			if d.SortOrder != nil {
				existing.SortOrder = plugin.Order(*d.SortOrder)
			}
			existing.Disabled = d.Disabled
			existing.Scope = d.Scope
		}
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	m := &merged{byType: make(map[string][]*declaration), count: len(ordered)}
	for _, decl := range ordered {
		m.byType[decl.TargetType] = append(m.byType[decl.TargetType], decl)
	}
	return m, nil
}

func validateDescriptor(scope string, d plugin.Descriptor) *apperrors.AppError {
	switch {
	case d.Key == "":
		return apperrors.NewRequired("plugin key").WithDetail("scope", scope)
	case d.TargetType == "":
		return apperrors.NewRequired("plugin target type").WithDetail("scope", scope).WithDetail("plugin", d.Key)
	}
	return nil
}

// checkRedeclaration rejects a later scope pointing an existing key at a
// different target or instance. Empty fields inherit from the earlier scope.
func checkRedeclaration(prev, next plugin.Descriptor) *apperrors.AppError {
	if next.TargetType != prev.TargetType {
		return apperrors.NewResolution(apperrors.CodeInvalidConfig,
			"plugin "+next.Key+" redeclared for a different type").
			WithDetail("plugin", next.Key).
			WithDetail("type", next.TargetType).
			WithDetail("declared_type", prev.TargetType)
	}
	if next.Instance != "" && next.Instance != prev.Instance {
		return apperrors.NewResolution(apperrors.CodeInvalidConfig,
			"plugin "+next.Key+" redeclared with a different instance").
			WithDetail("plugin", next.Key).
			WithDetail("instance", next.Instance).
			WithDetail("declared_instance", prev.Instance)
	}
	if next.TargetMethod != plugin.AllMethods && next.TargetMethod != prev.TargetMethod {
		return apperrors.NewResolution(apperrors.CodeInvalidConfig,
			"plugin "+next.Key+" redeclared for a different method").
			WithDetail("plugin", next.Key).
			WithDetail("method", next.TargetMethod).
			WithDetail("declared_method", prev.TargetMethod)
	}
	return nil
}

// collect returns the enabled declarations applying to method on any of
// types, ordered by SortOrder then declaration order.
func (m *merged) collect(types []string, method string) []*declaration {
	var out []*declaration
	for _, typeName := range types {
		for _, decl := range m.byType[typeName] {
			if decl.Disabled || !decl.Matches(method) {
				continue
			}
			out = append(out, decl)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if a, b := out[i].Position(), out[j].Position(); a != b {
			return a < b
		}
		return out[i].order < out[j].order
	})
	return out
}
