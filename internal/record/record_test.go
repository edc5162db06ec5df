package record

import (
	"encoding/json"
	"testing"

	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	catalog, err := schema.DefaultCatalog()
	require.NoError(t, err)
	settings, err := schema.NewDatabaseWithAllTypes("X-book", catalog)
	require.NoError(t, err)
	return NewDatabase(settings, "recX-book", catalog)
}

func legacyPost(content string) store.Post {
	return store.Post{
		"ID":            "42",
		"post_author":   "1",
		"post_date":     "2015-03-02 10:00:00",
		"post_modified": "2016-01-15 08:30:00",
		"post_title":    "Old Title",
		"post_content":  content,
		"post_excerpt":  "book",
		"post_status":   "publish",
		"post_name":     "old-title",
		"post_parent":   "0",
		"post_type":     "refX-book",
	}
}

func TestFromPost(t *testing.T) {
	db := newTestDatabase(t)

	rec, err := db.FromPost(legacyPost(`{
		"title": "Le titre",
		"organisation": [{"name": "CNRS", "country": "FRA"}],
		"owner": "doc",
		"language": "fre",
		"imported": "2015",
		"errors": ["x"],
		"refdoc": "gone",
		"pages": 12
	}`))
	require.NoError(t, err)

	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, "book", rec.Type())
	assert.Equal(t, "Old Title", rec.String("posttitle"))
	assert.Equal(t, "publish", rec.String("status"))
	assert.Equal(t, "Le titre", rec.String("title"))

	assert.Contains(t, rec.Fields, "corporation")
	assert.NotContains(t, rec.Fields, "organisation")
	assert.Equal(t, []any{"doc"}, rec.Fields["source"], "renamed and made repeatable")
	assert.Equal(t, []any{"fre"}, rec.Fields["language"])

	for _, gone := range []string{"imported", "errors", "refdoc", "pages"} {
		assert.NotContains(t, rec.Fields, gone)
	}
	assert.True(t, db.IsReference(rec))
}

func TestFromPostErrors(t *testing.T) {
	db := newTestDatabase(t)

	post := legacyPost(`{}`)
	post["post_excerpt"] = "unicorn"
	_, err := db.FromPost(post)
	assert.ErrorIs(t, err, util.ErrUnknownType)

	_, err = db.FromPost(legacyPost(`[1, 2`))
	assert.ErrorIs(t, err, util.ErrValidation)

	rec, err := db.FromPost(legacyPost(""))
	require.NoError(t, err, "an empty post_content is an empty record")
	assert.Equal(t, "", rec.String("title"))
}

func TestRenameKeepsExistingNewField(t *testing.T) {
	db := newTestDatabase(t)
	rec, err := db.FromPost(legacyPost(`{"owner": ["old"], "source": ["new"]}`))
	require.NoError(t, err)
	assert.Equal(t, []any{"new"}, rec.Fields["source"])
}

func TestBeforeSave(t *testing.T) {
	db := newTestDatabase(t)
	rec := &Record{Fields: map[string]any{"title": "  Café social  ", "posttitle": "x"}}
	db.BeforeSave(rec)
	assert.Equal(t, "Café social", rec.String("posttitle"))

	rec = &Record{Fields: map[string]any{"posttitle": "kept"}}
	db.BeforeSave(rec)
	assert.Equal(t, "kept", rec.String("posttitle"))
}

func TestEncode(t *testing.T) {
	db := newTestDatabase(t)
	rec, err := db.FromPost(legacyPost(`{"title": "T", "pages": 3, "genre": ["", "Rapport"], "topic": [{"type": "", "value": []}], "ref": 17}`))
	require.NoError(t, err)

	post, err := db.Encode(rec)
	require.NoError(t, err)

	assert.NotContains(t, post, "ID")
	assert.Equal(t, "book", post["post_excerpt"])
	assert.Equal(t, "Old Title", post["post_title"])
	assert.Equal(t, "0", post["post_parent"])

	var content map[string]any
	require.NoError(t, json.Unmarshal([]byte(post["post_content"]), &content))
	assert.Equal(t, map[string]any{
		"title": "T",
		"genre": []any{"Rapport"},
		"ref":   float64(17),
	}, content)
}

func TestDiff(t *testing.T) {
	original := store.Post{"ID": "1", "post_title": "a", "post_content": "{}", "post_status": "publish"}
	diff := Diff(original, map[string]string{
		"post_title":   "a",
		"post_content": `{"title":"a"}`,
		"post_status":  "publish",
		"post_type":    "dbx",
	})
	assert.Equal(t, map[string]string{"post_content": `{"title":"a"}`, "post_type": "dbx"}, diff)
	assert.Equal(t, []string{"post_content", "post_type"}, ChangedColumns(diff))
}

// Decoding then encoding an already current post changes nothing.
func TestEncodeRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	post := legacyPost(`{"genre":["Rapport"],"title":"Old Title"}`)

	rec, err := db.FromPost(post)
	require.NoError(t, err)
	db.BeforeSave(rec)
	encoded, err := db.Encode(rec)
	require.NoError(t, err)

	assert.Empty(t, Diff(post, encoded))
}
