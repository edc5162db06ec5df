package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/docalist/migration-prisme-2015/internal/util"
)

// Cleanup deletes the posts left by experimental docalist databases: post
// types starting with the probe prefix that are not legacy references.
type Cleanup struct {
	records RecordStore
	match   store.TypeMatch
	journal *report.EventLogger
}

// CleanupResult is the outcome of a cleanup.
type CleanupResult struct {
	Types   []store.TypeCount
	Deleted int64
}

// Nothing reports whether there was nothing to delete.
func (r *CleanupResult) Nothing() bool {
	return len(r.Types) == 0
}

// NewCleanup creates the cleanup tool. journal may be nil.
func NewCleanup(records RecordStore, probePrefix, legacyPrefix string, journal *report.EventLogger) (*Cleanup, error) {
	if probePrefix == "" || legacyPrefix == "" {
		return nil, fmt.Errorf("probe and legacy prefixes are required: %w", util.ErrInvalidConfig)
	}
	return &Cleanup{
		records: records,
		match:   store.TypeMatch{Prefix: probePrefix, Exclude: legacyPrefix},
		journal: journal,
	}, nil
}

// Preview returns the matching post types with their counts.
func (c *Cleanup) Preview(ctx context.Context) ([]store.TypeCount, error) {
	return c.records.CountPostTypes(ctx, c.match)
}

// Execute deletes every matching post in one statement. When nothing
// matches, nothing is deleted.
func (c *Cleanup) Execute(ctx context.Context) (*CleanupResult, error) {
	start := time.Now()

	types, err := c.Preview(ctx)
	if err != nil {
		return nil, err
	}
	result := &CleanupResult{Types: types}
	if result.Nothing() {
		util.InfoLog("Cleanup: no post matches %s* (excluding %s*), nothing to delete", c.match.Prefix, c.match.Exclude)
		return result, nil
	}

	deleted, err := c.records.DeletePosts(ctx, c.match)
	if err != nil {
		c.journal.LogError(report.EventDelete, c.match.Prefix+"*", err)
		return nil, err
	}
	result.Deleted = deleted

	for _, tc := range types {
		c.journal.LogDelete(tc.PostType, int64(tc.Count))
	}
	c.journal.LogSummary(deleted, time.Since(start), nil)
	util.InfoLog("Cleanup: deleted %d posts of %d post types", deleted, len(types))
	return result, nil
}
