package schema

import (
	"fmt"
	"slices"

	"github.com/docalist/migration-prisme-2015/internal/pathexpr"
)

// GridKind identifies one of the four grids of a type.
type GridKind string

const (
	GridBase    GridKind = "base"
	GridEdit    GridKind = "edit"
	GridContent GridKind = "content"
	GridExcerpt GridKind = "excerpt"
)

// GridKinds lists grid kinds in storage order.
var GridKinds = []GridKind{GridBase, GridEdit, GridContent, GridExcerpt}

// Grid describes the fields of a type for one purpose (storage, edit form,
// long or short display). It is kept as a key/value tree so that settings
// written by older versions round-trip without loss:
//
//	{name, label, description, fields: {<field>: {label, description,
//	 capability, table, table2, repeatable, fields: {...}}}}
type Grid map[string]any

// Tree exposes the grid to pathexpr.
func (g Grid) Tree() pathexpr.Tree { return pathexpr.Tree(g) }

func (g Grid) str(key string) string {
	s, _ := g[key].(string)
	return s
}

func (g Grid) Name() string        { return g.str("name") }
func (g Grid) Label() string       { return g.str("label") }
func (g Grid) Description() string { return g.str("description") }

// Fields returns the field definitions, or nil when the grid has none.
func (g Grid) Fields() map[string]any {
	f, _ := g["fields"].(map[string]any)
	return f
}

// Field returns the definition of the named field.
func (g Grid) Field(name string) (map[string]any, bool) {
	f, ok := g.Fields()[name].(map[string]any)
	return f, ok
}

// HasField reports whether the grid declares the named field.
func (g Grid) HasField(name string) bool {
	_, ok := g.Field(name)
	return ok
}

// FieldNames returns the declared field names, sorted.
func (g Grid) FieldNames() []string {
	fields := g.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRepeatable reports whether the named field holds a list of values.
func (g Grid) IsRepeatable(name string) bool {
	f, ok := g.Field(name)
	if !ok {
		return false
	}
	r, _ := f["repeatable"].(bool)
	return r
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	return Grid(pathexpr.Clone(pathexpr.Tree(g)))
}

// InitSubfields completes a derived grid (edit, content, excerpt) from the
// base grid: every field must be declared in base, and fields without their
// own subfield list inherit the subfields of the base definition.
func (g Grid) InitSubfields(base Grid) error {
	for _, name := range g.FieldNames() {
		baseField, ok := base.Field(name)
		if !ok {
			return fmt.Errorf("grid %q: field %q is not declared in the base grid: %w", g.Name(), name, ErrUnknownField)
		}
		field, ok := g.Field(name)
		if !ok {
			field = map[string]any{}
			g.Fields()[name] = field
		}

		baseSub, _ := baseField["fields"].(map[string]any)
		if len(baseSub) == 0 {
			continue
		}
		sub, _ := field["fields"].(map[string]any)
		if sub == nil {
			field["fields"] = pathexpr.Clone(baseSub)
			continue
		}
		for subName := range sub {
			if _, ok := baseSub[subName]; !ok {
				return fmt.Errorf("grid %q: subfield %s.%s is not declared in the base grid: %w", g.Name(), name, subName, ErrUnknownField)
			}
		}
	}
	return nil
}

// GridSet groups the four grids of a type.
type GridSet struct {
	Base    Grid
	Edit    Grid
	Content Grid
	Excerpt Grid
}

// Slice returns the grids in storage order.
func (s GridSet) Slice() []Grid {
	return []Grid{s.Base, s.Edit, s.Content, s.Excerpt}
}
