package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/docalist/migration-prisme-2015/internal/util"
)

// PostColumns lists the posts table columns the tools read and write.
var PostColumns = []string{
	"ID",
	"post_author",
	"post_date",
	"post_modified",
	"post_title",
	"post_content",
	"post_excerpt",
	"post_status",
	"post_name",
	"post_parent",
	"post_type",
}

// Post is a row of the posts table. Like the WordPress database layer, every
// value is read back as a string.
type Post map[string]string

// ID returns the numeric post id (0 when missing or malformed).
func (p Post) ID() int64 {
	id, _ := strconv.ParseInt(p["ID"], 10, 64)
	return id
}

// Type returns the post_type column.
func (p Post) Type() string {
	return p["post_type"]
}

// TypeCount is the number of posts of one post_type.
type TypeCount struct {
	PostType string
	Count    int
}

// TypeMatch selects post types by prefix. An empty Exclude matches nothing.
type TypeMatch struct {
	Prefix  string // post_type starts with Prefix
	Exclude string // ... and does not start with Exclude
}

func (m TypeMatch) where() (string, []any) {
	clause := "post_type LIKE ? ESCAPE '!'"
	args := []any{escapeLike(m.Prefix) + "%"}
	if m.Exclude != "" {
		clause += " AND post_type NOT LIKE ? ESCAPE '!'"
		args = append(args, escapeLike(m.Exclude)+"%")
	}
	return clause, args
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// CountPostTypes returns the distinct post types matching m with their counts,
// ordered by post type.
func (s *Store) CountPostTypes(ctx context.Context, m TypeMatch) ([]TypeCount, error) {
	if m.Prefix == "" {
		return nil, fmt.Errorf("post type prefix is required")
	}
	where, args := m.where()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT post_type, COUNT(*) FROM %s WHERE %s GROUP BY post_type ORDER BY post_type",
		s.PostsTable(), where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count post types: %w", err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.PostType, &tc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

// CountPostsByType returns the number of posts with exactly this post_type.
func (s *Store) CountPostsByType(ctx context.Context, postType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+s.PostsTable()+" WHERE post_type = ?", postType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts of type %s: %w", postType, err)
	}
	return count, nil
}

// DeletePosts deletes every post matching m in a single statement and
// returns the number of deleted rows.
func (s *Store) DeletePosts(ctx context.Context, m TypeMatch) (int64, error) {
	if m.Prefix == "" {
		return 0, fmt.Errorf("refusing to delete posts without a post type prefix")
	}
	where, args := m.where()
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+s.PostsTable()+" WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete posts: %w", err)
	}
	return res.RowsAffected()
}

// NextPostBatch returns at most limit posts of the given type, lowest ids
// first. It never skips rows with an offset: callers that change the type
// of the returned rows get the next slice on the following call.
func (s *Store) NextPostBatch(ctx context.Context, postType string, limit int) ([]Post, error) {
	if limit < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", limit)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE post_type = ? ORDER BY ID ASC LIMIT %d",
		strings.Join(PostColumns, ", "), s.PostsTable(), limit)

	rows, err := s.db.QueryContext(ctx, query, postType)
	if err != nil {
		return nil, fmt.Errorf("failed to load posts of type %s: %w", postType, err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		values := make([]sql.NullString, len(PostColumns))
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		post := make(Post, len(PostColumns))
		for i, col := range PostColumns {
			post[col] = values[i].String
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// PostsOfType yields the posts whose post_type equals postType in ascending
// ID order, batchSize rows at a time.
//
// After each batch the predicate is evaluated again from scratch (no
// offset), so the consumer may change the post_type of the yielded rows: they
// simply drop out of the next batch. Iteration stops when a batch comes back
// smaller than batchSize. A consumer that leaves a yielded row unchanged will
// see it again in the next batch, so it must either convert every row or stop.
func (s *Store) PostsOfType(ctx context.Context, postType string, batchSize int) iter.Seq2[Post, error] {
	return func(yield func(Post, error) bool) {
		for {
			batch, err := s.NextPostBatch(ctx, postType, batchSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, post := range batch {
				if !yield(post, nil) {
					return
				}
			}
			if len(batch) < batchSize {
				return
			}
		}
	}
}

// UpdateResult describes a single-row update.
type UpdateResult struct {
	Affected int64
	Query    string
}

// Check returns an error wrapping util.ErrPartialWrite unless exactly one
// row was affected.
func (r UpdateResult) Check(id int64) error {
	if r.Affected != 1 {
		return fmt.Errorf("update of post %d affected %d rows: %w", id, r.Affected, util.ErrPartialWrite)
	}
	return nil
}

// UpdatePost writes the given columns of one post. Only known columns other
// than ID may be updated.
func (s *Store) UpdatePost(ctx context.Context, id int64, fields map[string]string) (UpdateResult, error) {
	if len(fields) == 0 {
		return UpdateResult{}, fmt.Errorf("no fields to update for post %d", id)
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if col == "ID" || !slices.Contains(PostColumns, col) {
			return UpdateResult{}, fmt.Errorf("column %q cannot be updated", col)
		}
		cols = append(cols, col)
	}
	slices.Sort(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = "`" + col + "` = ?"
		args = append(args, fields[col])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE ID = ?", s.PostsTable(), strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return UpdateResult{Query: query}, fmt.Errorf("failed to update post %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return UpdateResult{Query: query}, err
	}
	return UpdateResult{Affected: n, Query: query}, nil
}

// InsertPost inserts a post and returns its id. Missing columns take the
// table defaults; an explicit ID is honoured.
func (s *Store) InsertPost(ctx context.Context, p Post) (int64, error) {
	var cols []string
	var args []any
	for _, col := range PostColumns {
		v, ok := p[col]
		if !ok {
			continue
		}
		cols = append(cols, "`"+col+"`")
		args = append(args, v)
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("empty post")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.PostsTable(),
		strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert post: %w", err)
	}
	return res.LastInsertId()
}

// GetPost returns one post, or nil when it does not exist.
func (s *Store) GetPost(ctx context.Context, id int64) (Post, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE ID = ?", strings.Join(PostColumns, ", "), s.PostsTable())
	values := make([]sql.NullString, len(PostColumns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	err := s.db.QueryRowContext(ctx, query, id).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post %d: %w", id, err)
	}
	post := make(Post, len(PostColumns))
	for i, col := range PostColumns {
		post[col] = values[i].String
	}
	return post, nil
}
