package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "wordpress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.DB().Exec("PRAGMA synchronous = OFF")
	require.NoError(t, err)
	return s
}

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	c, err := schema.DefaultCatalog()
	require.NoError(t, err)
	return c
}

// insertRecords adds n legacy records of the given sub-type.
func insertRecords(t *testing.T, s *store.Store, postType, recordType string, n int) {
	t.Helper()
	err := s.Transaction(context.Background(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT INTO " + s.PostsTable() +
			" (post_title, post_content, post_excerpt, post_type) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := 0; i < n; i++ {
			title := fmt.Sprintf("Notice %d", i)
			if _, err := stmt.Exec(title, `{"title":"","genre":"Rapport"}`, recordType, postType); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func countType(t *testing.T, s *store.Store, postType string) int {
	t.Helper()
	n, err := s.CountPostsByType(context.Background(), postType)
	require.NoError(t, err)
	return n
}

// recordingStore keeps the payload of every update.
type recordingStore struct {
	*store.Store
	updates  map[int64]map[string]string
	affected map[int64]int64 // forced RowsAffected per post
}

func newRecordingStore(s *store.Store) *recordingStore {
	return &recordingStore{Store: s, updates: map[int64]map[string]string{}, affected: map[int64]int64{}}
}

func (r *recordingStore) UpdatePost(ctx context.Context, id int64, fields map[string]string) (store.UpdateResult, error) {
	r.updates[id] = fields
	res, err := r.Store.UpdatePost(ctx, id, fields)
	if n, ok := r.affected[id]; ok && err == nil {
		res.Affected = n
	}
	return res, err
}
