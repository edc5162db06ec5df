package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/pathexpr"
	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoSettings = `{
	"databases": [{
		"name": "demo",
		"label": "Base de démonstration",
		"description": "",
		"homepage": "12",
		"homemode": "page",
		"searchpage": 14,
		"stemming": "fr",
		"creation": "2015/01/05 09:00:00",
		"icon": "dashicons-book",
		"notes": "Créée pour Prisme.",
		"thumbnail": "1",
		"revisions": 0,
		"comments": false,
		"types": [{
			"name": "article",
			"grids": [{
				"name": "base",
				"fields": {
					"author": {"table": "authors"},
					"organisation": {"table": "countries", "capability": "edit_others_posts"},
					"title": {"capability": "manage_options"},
					"language": {}
				}
			}]
		}, {
			"name": "legacy-type"
		}]
	}]
}`

func fixedClock() time.Time {
	return time.Date(2018, 3, 9, 14, 30, 5, 0, time.UTC)
}

func demoOldGrid() map[string]any {
	return map[string]any{
		"fields": map[string]any{
			"author":       map[string]any{"table": "authors"},
			"organisation": map[string]any{"table": "countries"},
		},
	}
}

func TestCustomizeGridScenario(t *testing.T) {
	grids, err := testCatalog(t).Grids("article")
	require.NoError(t, err)

	grid, diags := CustomizeGrid(grids.Base, demoOldGrid())

	role, err := pathexpr.Get(grid.Fields(), pathexpr.MustParse("author.fields.role.table"))
	require.NoError(t, err)
	assert.Equal(t, "authors", role)

	country, err := pathexpr.Get(grid.Fields(), pathexpr.MustParse("corporation.fields.country.table"))
	require.NoError(t, err)
	assert.Equal(t, "countries", country)

	// The default grid is not modified.
	role, err = pathexpr.Get(grids.Base.Fields(), pathexpr.MustParse("author.fields.role.table"))
	require.NoError(t, err)
	assert.Equal(t, "thesaurus:marc21-relators_fr", role)

	assert.Contains(t, diags, Diagnostic{Code: DiagTable, Message: "author.fields.role.table=authors"})
	assert.Contains(t, diags, Diagnostic{Code: DiagTable, Message: "corporation.fields.country.table=countries"})
	assert.Contains(t, diags, Diagnostic{Code: DiagInfo, Message: "Le champ genre n'existait pas à l'époque pour ce type"})
	assert.Contains(t, diags, Diagnostic{Code: DiagError, Message: "Le champ title n'existe pas dans l'ancienne grille"})
}

func TestCustomizeGridIsIdempotent(t *testing.T) {
	grids, err := testCatalog(t).Grids("book")
	require.NoError(t, err)

	old := demoOldGrid()
	old["fields"].(map[string]any)["title"] = map[string]any{"capability": "manage_options"}

	once, _ := CustomizeGrid(grids.Base, old)
	twice, _ := CustomizeGrid(once, old)
	assert.Equal(t, once, twice)
}

func TestCustomizeGridMissingPathsAreSkipped(t *testing.T) {
	grids, err := testCatalog(t).Grids("person")
	require.NoError(t, err)

	old := map[string]any{"fields": map[string]any{
		"author":   map[string]any{"label": "no table here"},
		"link":     "not a field definition",
		"language": map[string]any{"table": "languages"},
	}}
	grid, diags := CustomizeGrid(grids.Base, old)

	assert.Contains(t, diags, Diagnostic{Code: DiagInfo, Message: "Le champ author n'existe pas pour ce type"})
	assert.Contains(t, diags, Diagnostic{Code: DiagInfo, Message: "Le champ language n'existe pas pour ce type"})
	assert.Contains(t, diags, Diagnostic{Code: DiagInfo, Message: "link.table non trouvé dans l'ancienne grille"})
	assert.Equal(t, grids.Base, grid)
}

func TestCustomizeGridCapabilityThroughAlias(t *testing.T) {
	grids, err := testCatalog(t).Grids("meeting")
	require.NoError(t, err)

	old := map[string]any{"fields": map[string]any{
		"event": map[string]any{"capability": "edit_posts"},
		"owner": map[string]any{"capability": "manage_options"},
	}}
	grid, diags := CustomizeGrid(grids.Base, old)

	contextField, ok := grid.Field("context")
	require.True(t, ok)
	assert.Equal(t, "edit_posts", contextField["capability"])
	source, _ := grid.Field("source")
	assert.Equal(t, "manage_options", source["capability"])
	assert.Contains(t, diags, Diagnostic{Code: DiagCapability, Message: "context.capability=edit_posts"})
	assert.Equal(t, map[string]any{"capability": "edit_posts"}, old["fields"].(map[string]any)["event"])
	assert.NotContains(t, old["fields"], "context", "the legacy grid is not modified")
}

func TestDecodeLegacySettings(t *testing.T) {
	legacy, err := DecodeLegacySettings([]byte(demoSettings))
	require.NoError(t, err)
	require.Len(t, legacy.Databases, 1)

	db := legacy.Databases[0]
	assert.Equal(t, "demo", db.Name)
	assert.Equal(t, 12, db.Homepage, "numeric strings are accepted")
	assert.Equal(t, 14, db.Searchpage)
	assert.True(t, db.Thumbnail, `"1" is true`)
	assert.False(t, db.Revisions)
	require.Len(t, db.Types, 2)
	assert.Equal(t, "article", db.Types[0].Name)
	assert.Contains(t, db.Types[0].CustomizedGrid(), "fields")
	assert.Equal(t, map[string]any{"fields": map[string]any{}}, db.Types[1].CustomizedGrid())

	_, err = DecodeLegacySettings([]byte(`[1,2]`))
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestLoadLegacySettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tool := NewSettingsImport(s, testCatalog(t), "Daniel", nil)

	legacy, err := tool.LoadLegacySettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, legacy, "no legacy settings, nothing to import")

	require.NoError(t, s.SaveOption(ctx, LegacySettingsOption, map[string]any{"databases": []any{}}))
	legacy, err = tool.LoadLegacySettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, legacy)

	_, err = tool.Execute(ctx, nil)
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestSettingsImportScenario(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.DB().Exec("INSERT INTO "+s.OptionsTable()+" (option_name, option_value) VALUES (?, ?)",
		LegacySettingsOption, demoSettings)
	require.NoError(t, err)
	require.NoError(t, s.SaveOption(ctx, schema.SettingsOption, map[string]any{"databases": []any{}, "stale": true}))

	tool := NewSettingsImport(s, testCatalog(t), "Daniel", nil).WithClock(fixedClock)

	legacy, err := tool.LoadLegacySettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, legacy)

	result, err := tool.Execute(ctx, legacy)
	require.NoError(t, err)
	assert.Contains(t, result.Diagnostics, Diagnostic{Code: DiagError, Message: "Le type legacy-type n'existe plus, il est ignoré"})

	raw, err := s.LoadOptionRaw(ctx, schema.SettingsOption)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "stale", "settings are replaced, not merged")

	var saved schema.Settings
	require.NoError(t, s.LoadOption(ctx, schema.SettingsOption, &saved))
	require.Len(t, saved.Databases, 1)

	db := saved.Databases[0]
	assert.Equal(t, "demo", db.Name)
	assert.Equal(t, "Base de démonstration", db.Label)
	assert.Equal(t, 12, db.Homepage)
	assert.Equal(t, "page", db.Homemode)
	assert.Equal(t, "fr", db.Stemming)
	assert.Equal(t, "2015/01/05 09:00:00", db.Creation)
	assert.Equal(t, "2018/03/09 14:30:05", db.Lastupdate)
	assert.Equal(t, "Créée pour Prisme.\n09/03/2018 : Import des anciens paramètres Docalist (Daniel)", db.Notes)
	assert.True(t, db.Thumbnail)

	require.Len(t, db.Types, 1)
	article, ok := db.Type("article")
	require.True(t, ok)
	assert.Equal(t, "Article", article.Label)
	require.Len(t, article.Grids, 4)

	base, ok := article.Grid(schema.GridBase)
	require.True(t, ok)
	role, err := pathexpr.Get(base.Fields(), pathexpr.MustParse("author.fields.role.table"))
	require.NoError(t, err)
	assert.Equal(t, "authors", role)
	country, err := pathexpr.Get(base.Fields(), pathexpr.MustParse("corporation.fields.country.table"))
	require.NoError(t, err)
	assert.Equal(t, "countries", country)
	capability, err := pathexpr.Get(base.Fields(), pathexpr.MustParse("corporation.capability"))
	require.NoError(t, err)
	assert.Equal(t, "edit_others_posts", capability)

	// Derived grids get their subfields from the customized base grid.
	edit, ok := article.Grid(schema.GridEdit)
	require.True(t, ok)
	role, err = pathexpr.Get(edit.Fields(), pathexpr.MustParse("author.fields.role.table"))
	require.NoError(t, err)
	assert.Equal(t, "authors", role)
}

func TestSettingsImportEmptyNotes(t *testing.T) {
	s := openTestStore(t)
	tool := NewSettingsImport(s, testCatalog(t), "Admin", nil).WithClock(fixedClock)

	result, err := tool.Execute(context.Background(), &LegacySettings{Databases: []LegacyDatabase{{Name: "empty"}}})
	require.NoError(t, err)
	require.Len(t, result.Settings.Databases, 1)
	assert.Equal(t, "09/03/2018 : Import des anciens paramètres Docalist (Admin)", result.Settings.Databases[0].Notes)
	assert.Empty(t, result.Settings.Databases[0].Types)
}
