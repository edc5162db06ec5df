package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/docalist/migration-prisme-2015/internal/pathexpr"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// ErrUnknownField is returned when a derived grid references a field the
// base grid does not declare.
var ErrUnknownField = errors.New("unknown field")

// Catalog returns the default grids of every registered record type.
type Catalog struct {
	fields  map[string]map[string]any
	types   map[string]typeDef
	system  []string
	content []string
	excerpt []string
}

type typeDef struct {
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Reference   bool     `yaml:"reference"`
	Fields      nameList `yaml:"fields"`
}

type catalogFile struct {
	System  nameList                  `yaml:"system"`
	Fields  map[string]map[string]any `yaml:"fields"`
	Common  nameList                  `yaml:"common"`
	Content nameList                  `yaml:"content"`
	Excerpt nameList                  `yaml:"excerpt"`
	Types   map[string]typeDef        `yaml:"types"`
}

// nameList is a list of field names; nested lists (YAML aliases of other
// lists) are flattened.
type nameList []string

func (l *nameList) UnmarshalYAML(n *yaml.Node) error {
	var out []string
	var walk func(*yaml.Node) error
	walk = func(n *yaml.Node) error {
		switch n.Kind {
		case yaml.AliasNode:
			return walk(n.Alias)
		case yaml.SequenceNode:
			for _, c := range n.Content {
				if err := walk(c); err != nil {
					return err
				}
			}
		case yaml.ScalarNode:
			out = append(out, n.Value)
		default:
			return fmt.Errorf("line %d: expected a field name or a list of field names", n.Line)
		}
		return nil
	}
	if err := walk(n); err != nil {
		return err
	}
	*l = out
	return nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = LoadCatalog(defaultCatalogYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// LoadCatalog parses a catalog document and checks that every type only
// uses declared fields.
func LoadCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Types) == 0 {
		return nil, fmt.Errorf("catalog declares no types: %w", util.ErrInvalidConfig)
	}

	c := &Catalog{
		fields:  f.Fields,
		types:   f.Types,
		system:  f.System,
		content: f.Content,
		excerpt: f.Excerpt,
	}
	for name, t := range c.types {
		for _, field := range append(slices.Clone(c.system), t.Fields...) {
			if _, ok := c.fields[field]; !ok {
				return nil, fmt.Errorf("type %q uses undeclared field %q: %w", name, field, ErrUnknownField)
			}
		}
	}
	return c, nil
}

// Types returns the registered type names, sorted.
func (c *Catalog) Types() []string {
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether the type is registered.
func (c *Catalog) Has(typeName string) bool {
	_, ok := c.types[typeName]
	return ok
}

// IsReference reports whether records of this type are bibliographic references.
func (c *Catalog) IsReference(typeName string) bool {
	return c.types[typeName].Reference
}

// Grids builds fresh default grids for a type. The returned grids are not
// shared with the catalog and may be modified by the caller.
func (c *Catalog) Grids(typeName string) (GridSet, error) {
	t, ok := c.types[typeName]
	if !ok {
		return GridSet{}, fmt.Errorf("type %q: %w", typeName, util.ErrUnknownType)
	}

	baseFields := make(map[string]any)
	for _, name := range append(slices.Clone(c.system), t.Fields...) {
		baseFields[name] = pathexpr.Clone(c.fields[name])
	}

	set := GridSet{
		Base: Grid{
			"name":        string(GridBase),
			"label":       t.Label,
			"description": t.Description,
			"fields":      baseFields,
		},
		Edit:    derivedGrid(GridEdit, "Formulaire de saisie", t.Fields, nil),
		Content: derivedGrid(GridContent, "Affichage long", t.Fields, c.content),
		Excerpt: derivedGrid(GridExcerpt, "Affichage court", t.Fields, c.excerpt),
	}
	return set, nil
}

// derivedGrid lists the type fields, restricted to subset when not nil.
func derivedGrid(kind GridKind, label string, typeFields, subset []string) Grid {
	fields := make(map[string]any)
	for _, name := range typeFields {
		if subset != nil && !slices.Contains(subset, name) {
			continue
		}
		fields[name] = map[string]any{}
	}
	return Grid{
		"name":   string(kind),
		"label":  label,
		"fields": fields,
	}
}
