package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/pathexpr"
	"github.com/docalist/migration-prisme-2015/internal/record"
	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/go-viper/mapstructure/v2"
)

// LegacySettingsOption is the option where docalist-biblio kept its settings.
const LegacySettingsOption = "docalist-biblio-settings"

// TableBinding moves a table selection from a legacy grid to a new grid.
// Paths are relative to the grid fields.
type TableBinding struct {
	Source      pathexpr.Path
	Destination pathexpr.Path
}

// TableBindings lists where the "table" and "table2" attributes of the 2015
// grids live in the current grids.
var TableBindings = []TableBinding{
	{pathexpr.MustParse("genre.table"), pathexpr.MustParse("genre.table")},
	{pathexpr.MustParse("media.table"), pathexpr.MustParse("media.table")},
	{pathexpr.MustParse("othertitle.table"), pathexpr.MustParse("othertitle.fields.type.table")},
	{pathexpr.MustParse("translation.table"), pathexpr.MustParse("translation.fields.type.table")},
	{pathexpr.MustParse("author.table"), pathexpr.MustParse("author.fields.role.table")},
	{pathexpr.MustParse("organisation.table"), pathexpr.MustParse("corporation.fields.country.table")},
	{pathexpr.MustParse("organisation.table2"), pathexpr.MustParse("corporation.fields.role.table")},
	{pathexpr.MustParse("date.table"), pathexpr.MustParse("date.fields.type.table")},
	{pathexpr.MustParse("number.table"), pathexpr.MustParse("number.fields.type.table")},
	{pathexpr.MustParse("language.table"), pathexpr.MustParse("language.table")},
	{pathexpr.MustParse("extent.table"), pathexpr.MustParse("extent.fields.type.table")},
	{pathexpr.MustParse("format.table"), pathexpr.MustParse("format.table")},
	{pathexpr.MustParse("topic.table"), pathexpr.MustParse("topic.fields.type.table")},
	{pathexpr.MustParse("content.table"), pathexpr.MustParse("content.fields.type.table")},
	{pathexpr.MustParse("link.table"), pathexpr.MustParse("link.fields.type.table")},
	{pathexpr.MustParse("relation.table"), pathexpr.MustParse("relation.fields.type.table")},
}

// LegacySettings are the docalist-biblio settings. They were written by PHP,
// so scalars are decoded leniently ("1" for true, numbers as strings...).
type LegacySettings struct {
	Databases []LegacyDatabase `mapstructure:"databases"`
}

// LegacyDatabase is one docalist-biblio database.
type LegacyDatabase struct {
	Name        string       `mapstructure:"name"`
	Homepage    int          `mapstructure:"homepage"`
	Homemode    string       `mapstructure:"homemode"`
	Searchpage  int          `mapstructure:"searchpage"`
	Label       string       `mapstructure:"label"`
	Description string       `mapstructure:"description"`
	Stemming    string       `mapstructure:"stemming"`
	Types       []LegacyType `mapstructure:"types"`
	Creation    string       `mapstructure:"creation"`
	Icon        string       `mapstructure:"icon"`
	Notes       string       `mapstructure:"notes"`
	Thumbnail   bool         `mapstructure:"thumbnail"`
	Revisions   bool         `mapstructure:"revisions"`
	Comments    bool         `mapstructure:"comments"`
}

// LegacyType is a record type of a docalist-biblio database. The first grid
// holds the customizations of the type.
type LegacyType struct {
	Name  string           `mapstructure:"name"`
	Grids []map[string]any `mapstructure:"grids"`
}

// CustomizedGrid returns the first legacy grid, or an empty grid.
func (t LegacyType) CustomizedGrid() map[string]any {
	if len(t.Grids) == 0 || t.Grids[0] == nil {
		return map[string]any{"fields": map[string]any{}}
	}
	return t.Grids[0]
}

// DecodeLegacySettings decodes the raw JSON value of the legacy option.
func DecodeLegacySettings(raw []byte) (*LegacySettings, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%s is not a JSON object: %w", LegacySettingsOption, util.ErrValidation)
	}

	var settings LegacySettings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &settings,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", LegacySettingsOption, err)
	}
	return &settings, nil
}

// SettingsImport rebuilds the docalist-data settings from the
// docalist-biblio ones.
type SettingsImport struct {
	settings SettingsStore
	catalog  SchemaCatalog
	user     string
	now      func() time.Time
	journal  *report.EventLogger
}

// NewSettingsImport creates the settings import tool. user is the name
// written in the audit note of each database; journal may be nil.
func NewSettingsImport(settings SettingsStore, catalog SchemaCatalog, user string, journal *report.EventLogger) *SettingsImport {
	return &SettingsImport{settings: settings, catalog: catalog, user: user, now: time.Now, journal: journal}
}

// WithClock replaces the clock used for dates.
func (s *SettingsImport) WithClock(now func() time.Time) *SettingsImport {
	s.now = now
	return s
}

// LoadLegacySettings returns the legacy settings, or nil when there are
// none: there is nothing to import.
func (s *SettingsImport) LoadLegacySettings(ctx context.Context) (*LegacySettings, error) {
	ok, err := s.settings.HasOption(ctx, LegacySettingsOption)
	if err != nil || !ok {
		return nil, err
	}
	raw, err := s.settings.LoadOptionRaw(ctx, LegacySettingsOption)
	if err != nil {
		return nil, err
	}
	legacy, err := DecodeLegacySettings(raw)
	if err != nil {
		return nil, err
	}
	if len(legacy.Databases) == 0 {
		return nil, nil
	}
	return legacy, nil
}

// ImportResult is the outcome of a settings import.
type ImportResult struct {
	Settings    schema.Settings
	Diagnostics []Diagnostic
}

// Execute replaces the whole docalist-data settings object with one
// database per legacy database. Nothing is written if a database cannot be
// converted.
func (s *SettingsImport) Execute(ctx context.Context, legacy *LegacySettings) (*ImportResult, error) {
	if legacy == nil || len(legacy.Databases) == 0 {
		return nil, fmt.Errorf("no legacy settings to import: %w", util.ErrValidation)
	}
	start := time.Now()
	now := s.now()

	result := &ImportResult{}
	for _, old := range legacy.Databases {
		db, diags, err := s.convertDatabase(old, now)
		if err != nil {
			return nil, err
		}
		result.Settings.Databases = append(result.Settings.Databases, db)
		result.Diagnostics = append(result.Diagnostics, diags...)
		s.journal.LogImport(db.Name, len(db.Types), len(diags))
	}

	if err := s.settings.DeleteOption(ctx, schema.SettingsOption); err != nil {
		return nil, err
	}
	if err := s.settings.SaveOption(ctx, schema.SettingsOption, result.Settings); err != nil {
		return nil, err
	}

	s.journal.LogSummary(int64(len(result.Settings.Databases)), time.Since(start), nil)
	util.InfoLog("Settings: %d databases imported into %s", len(result.Settings.Databases), schema.SettingsOption)
	return result, nil
}

func (s *SettingsImport) convertDatabase(old LegacyDatabase, now time.Time) (schema.DatabaseSettings, []Diagnostic, error) {
	util.InfoLog("Settings: converting database %q", old.Name)

	notes := old.Notes + "\n" + now.Format("02/01/2006") + " : Import des anciens paramètres Docalist (" + s.user + ")"

	db := schema.DatabaseSettings{
		Name:        old.Name,
		Homepage:    old.Homepage,
		Homemode:    old.Homemode,
		Searchpage:  old.Searchpage,
		Label:       old.Label,
		Description: old.Description,
		Stemming:    old.Stemming,
		Creation:    old.Creation,
		Lastupdate:  now.Format("2006/01/02 15:04:05"),
		Icon:        old.Icon,
		Notes:       strings.TrimSpace(notes),
		Thumbnail:   old.Thumbnail,
		Revisions:   old.Revisions,
		Comments:    old.Comments,
		Types:       []schema.TypeSettings{},
	}

	var diags []Diagnostic
	for _, t := range old.Types {
		if !s.catalog.Has(t.Name) {
			d := diag(DiagError, "Le type %s n'existe plus, il est ignoré", t.Name)
			util.WarnLog("Settings: %s: %s", old.Name, d)
			diags = append(diags, d)
			continue
		}
		ts, typeDiags, err := s.convertType(t)
		diags = append(diags, typeDiags...)
		if err != nil {
			return db, diags, fmt.Errorf("database %q: %w", old.Name, err)
		}
		db.Types = append(db.Types, ts)
	}
	return db, diags, nil
}

func (s *SettingsImport) convertType(t LegacyType) (schema.TypeSettings, []Diagnostic, error) {
	grids, err := s.catalog.Grids(t.Name)
	if err != nil {
		return schema.TypeSettings{}, nil, err
	}

	base, diags := CustomizeGrid(grids.Base, t.CustomizedGrid())
	for _, d := range diags {
		util.DebugLog("Settings: %s: %s", t.Name, d)
	}
	grids.Base = base

	ts, err := schema.NewTypeSettings(t.Name, grids)
	return ts, diags, err
}

// CustomizeGrid applies the customizations of a legacy grid to a default
// grid and returns the result; neither argument is modified.
//
// Table selections are carried over through TableBindings, then the renamed
// fields of the legacy grid are aliased under their new name and the access
// capabilities of the fields present in both grids are copied. A path that
// cannot be resolved on either side only produces a diagnostic.
func CustomizeGrid(grid schema.Grid, oldGrid map[string]any) (schema.Grid, []Diagnostic) {
	grid = grid.Clone()
	fields := grid.Fields()
	if fields == nil {
		fields = map[string]any{}
		grid["fields"] = fields
	}
	oldFields, _ := pathexpr.Clone(oldGrid)["fields"].(map[string]any)
	if oldFields == nil {
		oldFields = map[string]any{}
	}

	var diags []Diagnostic

	for _, b := range TableBindings {
		field := b.Destination.Head()
		if _, ok := fields[field]; !ok {
			diags = append(diags, diag(DiagInfo, "Le champ %s n'existe pas pour ce type", field))
			continue
		}
		oldField := b.Source.Head()
		if _, ok := oldFields[oldField]; !ok {
			diags = append(diags, diag(DiagInfo, "Le champ %s n'existait pas à l'époque pour ce type", oldField))
			continue
		}
		table, err := pathexpr.Get(oldFields, b.Source)
		if err != nil {
			diags = append(diags, diag(DiagInfo, "%s non trouvé dans l'ancienne grille", b.Source))
			continue
		}
		if err := pathexpr.Set(fields, b.Destination, table); err != nil {
			diags = append(diags, diag(DiagError, "%s non trouvé dans la grille : %v", b.Destination, err))
			continue
		}
		diags = append(diags, diag(DiagTable, "%s=%v", b.Destination, table))
	}

	for oldName, newName := range record.RenamedFields {
		if v, ok := oldFields[oldName]; ok {
			oldFields[newName] = v
		}
	}

	for _, name := range grid.FieldNames() {
		old, ok := oldFields[name].(map[string]any)
		if !ok {
			diags = append(diags, diag(DiagError, "Le champ %s n'existe pas dans l'ancienne grille", name))
			continue
		}
		capability, ok := old["capability"]
		if !ok || capability == nil || capability == "" {
			continue
		}
		if field, ok := fields[name].(map[string]any); ok {
			field["capability"] = capability
			diags = append(diags, diag(DiagCapability, "%s.capability=%v", name, capability))
		}
	}

	return grid, diags
}
