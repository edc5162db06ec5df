package schema

import "fmt"

// SettingsOption is the option under which docalist-data stores its settings.
const SettingsOption = "docalist-data-settings"

// TypeSettings describes one record type of a database.
type TypeSettings struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Grids       []Grid `json:"grids"`
}

// Grid returns the grid of the given kind.
func (t TypeSettings) Grid(kind GridKind) (Grid, bool) {
	for _, g := range t.Grids {
		if g.Name() == string(kind) {
			return g, true
		}
	}
	return nil, false
}

// NewTypeSettings assembles a type from its four grids. The derived grids
// are completed from the base grid; label and description come from base.
func NewTypeSettings(name string, grids GridSet) (TypeSettings, error) {
	for _, g := range []Grid{grids.Edit, grids.Content, grids.Excerpt} {
		if err := g.InitSubfields(grids.Base); err != nil {
			return TypeSettings{}, fmt.Errorf("type %q: %w", name, err)
		}
	}
	return TypeSettings{
		Name:        name,
		Label:       grids.Base.Label(),
		Description: grids.Base.Description(),
		Grids:       grids.Slice(),
	}, nil
}

// DatabaseSettings describes a docalist-data database.
type DatabaseSettings struct {
	Name        string         `json:"name"`
	Homepage    int            `json:"homepage"`
	Homemode    string         `json:"homemode"`
	Searchpage  int            `json:"searchpage"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Stemming    string         `json:"stemming"`
	Types       []TypeSettings `json:"types"`
	Creation    string         `json:"creation"`
	Lastupdate  string         `json:"lastupdate"`
	Icon        string         `json:"icon"`
	Notes       string         `json:"notes"`
	Thumbnail   bool           `json:"thumbnail"`
	Revisions   bool           `json:"revisions"`
	Comments    bool           `json:"comments"`
}

// Type returns the settings of the named type.
func (d *DatabaseSettings) Type(name string) (*TypeSettings, bool) {
	for i := range d.Types {
		if d.Types[i].Name == name {
			return &d.Types[i], true
		}
	}
	return nil, false
}

// Settings is the whole docalist-data settings object.
type Settings struct {
	Databases []DatabaseSettings `json:"databases"`
}

// GridSource provides the default grids of a set of types. *Catalog is one.
type GridSource interface {
	Types() []string
	Grids(typeName string) (GridSet, error)
}

// NewDatabaseWithAllTypes builds an in-memory database declaring every type
// of the catalog with its default grids. It is never persisted.
func NewDatabaseWithAllTypes(name string, catalog GridSource) (*DatabaseSettings, error) {
	db := &DatabaseSettings{Name: name}
	for _, typeName := range catalog.Types() {
		grids, err := catalog.Grids(typeName)
		if err != nil {
			return nil, err
		}
		ts, err := NewTypeSettings(typeName, grids)
		if err != nil {
			return nil, err
		}
		db.Types = append(db.Types, ts)
	}
	return db, nil
}
