package migrate

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docalist/migration-prisme-2015/internal/remote"
	"github.com/docalist/migration-prisme-2015/internal/tables"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prismeSite = "http://prisme.example.org"

const prismeMaster = "name\tpath\tlabel\tformat\ttype\treadonly\n" +
	"countries\t/wp-content/plugins/docalist-core/tables/countries.txt\tPays\ttable\tcountries\t1\n" +
	"prisme-topics\t/uploads/docalist-data/tables/prisme-topics.txt\tVocabulaires Prisme\ttable\ttopics\t0\n" +
	"prisme-genres\t/uploads/docalist-data/tables/prisme-genres.txt\tGenres Prisme\tthesaurus\tgenres\t0\n"

func newTablesTool(t *testing.T) (*CustomTables, *tables.Registry, string) {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	fetcher := remote.NewClient(&remote.Config{
		BaseURL:     prismeSite,
		HTTPClient:  httpClient,
		RetryConfig: util.NoRetryConfig(),
	})
	registry := tables.NewRegistry(openTestStore(t))
	dir := filepath.Join(t.TempDir(), "tables")

	tool, err := NewCustomTables(fetcher, registry, dir, nil)
	require.NoError(t, err)
	return tool, registry, dir
}

func TestCustomTablesList(t *testing.T) {
	tool, _, dir := newTablesTool(t)
	httpmock.RegisterResponder(http.MethodGet, prismeSite+remote.MasterPath,
		httpmock.NewStringResponder(http.StatusOK, prismeMaster))

	list, err := tool.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "prisme-topics", list[0].Name)
	assert.Equal(t, "prisme-genres", list[1].Name)

	_, err = os.Stat(filepath.Join(dir, ScratchMaster))
	assert.True(t, os.IsNotExist(err), "scratch master table is removed")
}

func TestCustomTablesListRemovesScratchOnParseError(t *testing.T) {
	tool, _, dir := newTablesTool(t)
	httpmock.RegisterResponder(http.MethodGet, prismeSite+remote.MasterPath,
		httpmock.NewStringResponder(http.StatusOK, "label\tformat\nx\ty\n"))

	_, err := tool.List(context.Background())
	assert.ErrorIs(t, err, util.ErrValidation)

	_, err = os.Stat(filepath.Join(dir, ScratchMaster))
	assert.True(t, os.IsNotExist(err))
}

func TestCustomTablesListFetchFailure(t *testing.T) {
	tool, _, _ := newTablesTool(t)
	httpmock.RegisterResponder(http.MethodGet, prismeSite+remote.MasterPath,
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := tool.List(context.Background())
	assert.ErrorIs(t, err, util.ErrRemoteFetch)
}

func TestCustomTablesExecute(t *testing.T) {
	tool, registry, dir := newTablesTool(t)
	ctx := context.Background()

	list, err := tables.ParseMaster(strings.NewReader(prismeMaster))
	require.NoError(t, err)
	list = tables.CustomTables(list)

	// Existing state: an old copy of the topics table, and an unrelated table.
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prisme-topics.txt"), []byte("old"), 0644))
	require.NoError(t, registry.Register(ctx, tables.TableInfo{Name: "prisme-topics", Path: "/old/prisme-topics.txt"}))
	require.NoError(t, registry.Register(ctx, tables.TableInfo{Name: "other", Path: "/tables/other.txt"}))

	previews := tool.Preview(list)
	require.Len(t, previews, 2)
	assert.True(t, previews[0].Exists, "topics will be overwritten")
	assert.False(t, previews[1].Exists, "genres is new")

	httpmock.RegisterResponder(http.MethodGet, prismeSite+"/uploads/docalist-data/tables/prisme-topics.txt",
		httpmock.NewStringResponder(http.StatusOK, "code\tlabel\nA\tAction sociale\n"))
	httpmock.RegisterResponder(http.MethodGet, prismeSite+"/uploads/docalist-data/tables/prisme-genres.txt",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	var seen []string
	result, err := tool.Execute(ctx, list, func(o TableOutcome) { seen = append(seen, o.Table.Name) })
	require.NoError(t, err)
	assert.Equal(t, []string{"prisme-topics", "prisme-genres"}, seen, "manifest order")
	assert.Equal(t, 1, result.Failed())

	topics := result.Outcomes[0]
	require.NoError(t, topics.Err)
	assert.True(t, topics.Replaced)
	assert.True(t, topics.Overwritten)
	assert.Equal(t, int64(len("code\tlabel\nA\tAction sociale\n")), topics.Bytes)
	data, err := os.ReadFile(filepath.Join(dir, "prisme-topics.txt"))
	require.NoError(t, err)
	assert.Equal(t, "code\tlabel\nA\tAction sociale\n", string(data))

	registered, err := registry.Get(ctx, "prisme-topics")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(registered.Path))
	assert.Equal(t, "prisme-topics.txt", filepath.Base(registered.Path))
	assert.Equal(t, "Vocabulaires Prisme", registered.Label)

	genres := result.Outcomes[1]
	assert.ErrorIs(t, genres.Err, util.ErrRemoteFetch)
	ok, err := registry.Has(ctx, "prisme-genres")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(dir, "prisme-genres.txt"))
	assert.True(t, os.IsNotExist(err))

	other, err := registry.Get(ctx, "other")
	require.NoError(t, err, "other registrations are untouched")
	assert.Equal(t, "/tables/other.txt", other.Path)
}

func TestCustomTablesFailedDownloadKeepsRegistration(t *testing.T) {
	tool, registry, _ := newTablesTool(t)
	ctx := context.Background()

	table := tables.TableInfo{Name: "prisme-topics", Path: "/uploads/docalist-data/tables/prisme-topics.txt"}
	require.NoError(t, registry.Register(ctx, tables.TableInfo{Name: "prisme-topics", Path: "/old/prisme-topics.txt"}))
	httpmock.RegisterResponder(http.MethodGet, prismeSite+table.Path,
		httpmock.NewStringResponder(http.StatusForbidden, ""))

	result, err := tool.Execute(ctx, []tables.TableInfo{table}, nil)
	require.NoError(t, err)
	require.Error(t, result.Outcomes[0].Err)
	assert.False(t, result.Outcomes[0].Replaced)

	old, err := registry.Get(ctx, "prisme-topics")
	require.NoError(t, err)
	assert.Equal(t, "/old/prisme-topics.txt", old.Path)
}

func TestCustomTablesExecuteCancelled(t *testing.T) {
	tool, _, _ := newTablesTool(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := tool.Execute(ctx, []tables.TableInfo{{Name: "a", Path: "/a.txt"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Outcomes)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}
