package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/remote"
	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/tables"
	"github.com/docalist/migration-prisme-2015/internal/util"
)

// ScratchMaster is the name of the temporary copy of the remote master table.
const ScratchMaster = "master-prisme-org.txt"

// CustomTables downloads the site specific lookup tables of the remote site
// into a local directory and registers them.
type CustomTables struct {
	fetcher  TableFetcher
	registry TableRegistry
	dir      string
	journal  *report.EventLogger
}

// NewCustomTables creates the table download tool. Tables are written to
// dir. journal may be nil.
func NewCustomTables(fetcher TableFetcher, registry TableRegistry, dir string, journal *report.EventLogger) (*CustomTables, error) {
	if dir == "" {
		return nil, fmt.Errorf("tables directory is required: %w", util.ErrInvalidConfig)
	}
	return &CustomTables{fetcher: fetcher, registry: registry, dir: dir, journal: journal}, nil
}

// LocalPath returns where a table is stored locally.
func (c *CustomTables) LocalPath(t tables.TableInfo) string {
	return filepath.Join(c.dir, t.BaseName())
}

// List downloads the remote master table and returns its custom tables, in
// manifest order. The master table is written to a scratch file which is
// always removed.
func (c *CustomTables) List(ctx context.Context) ([]tables.TableInfo, error) {
	util.InfoLog("Tables: downloading the table list from %s", c.fetcher.URL(remote.MasterPath))
	data, err := c.fetcher.FetchPath(ctx, remote.MasterPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tables directory: %w", err)
	}
	scratch := filepath.Join(c.dir, ScratchMaster)
	if err := os.WriteFile(scratch, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", scratch, err)
	}
	defer func() {
		if err := os.Remove(scratch); err != nil && !os.IsNotExist(err) {
			util.WarnLog("Tables: failed to remove %s: %v", scratch, err)
		}
	}()

	all, err := tables.ParseMasterFile(scratch)
	if err != nil {
		return nil, err
	}
	custom := tables.CustomTables(all)
	util.InfoLog("Tables: %d custom tables out of %d", len(custom), len(all))
	return custom, nil
}

// TablePreview tells what Execute will do with a table.
type TablePreview struct {
	Table     tables.TableInfo
	LocalPath string
	Exists    bool // the local file will be overwritten
}

// Preview reports for each table whether a local file of the same name
// already exists.
func (c *CustomTables) Preview(list []tables.TableInfo) []TablePreview {
	previews := make([]TablePreview, 0, len(list))
	for _, t := range list {
		path := c.LocalPath(t)
		_, err := os.Stat(path)
		previews = append(previews, TablePreview{Table: t, LocalPath: path, Exists: err == nil})
	}
	return previews
}

// TableOutcome is the result of one table download.
type TableOutcome struct {
	Table       tables.TableInfo
	URL         string
	LocalPath   string
	Bytes       int64
	Replaced    bool // a previous registration was removed
	Overwritten bool // a previous local file was replaced
	Err         error
}

// DownloadResult lists the outcome of each table, in processing order.
type DownloadResult struct {
	Outcomes []TableOutcome
}

// Failed returns the number of tables that could not be installed.
func (r *DownloadResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Bytes returns the number of bytes written.
func (r *DownloadResult) Bytes() int64 {
	var n int64
	for _, o := range r.Outcomes {
		n += o.Bytes
	}
	return n
}

// Execute installs the tables one after the other. A table that cannot be
// downloaded, written or registered is reported in its outcome and the next
// table is processed; registrations of other tables are never touched.
// Only a cancelled context stops the loop early. progress, when not nil, is
// called after each table.
func (c *CustomTables) Execute(ctx context.Context, list []tables.TableInfo, progress func(TableOutcome)) (*DownloadResult, error) {
	start := time.Now()
	result := &DownloadResult{}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tables directory: %w", err)
	}

	for _, t := range list {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tableStart := time.Now()
		outcome := c.install(ctx, t)
		result.Outcomes = append(result.Outcomes, outcome)

		c.journal.LogDownload(t.Name, outcome.URL, outcome.LocalPath, outcome.Bytes, time.Since(tableStart), outcome.Err)
		if outcome.Err != nil {
			util.ErrorLog("Tables: %s: %v", t.Name, outcome.Err)
		} else {
			util.InfoLog("Tables: %s installed in %s (%d bytes)", t.Name, outcome.LocalPath, outcome.Bytes)
		}
		if progress != nil {
			progress(outcome)
		}
	}

	c.journal.LogSummary(int64(len(list)-result.Failed()), time.Since(start), map[string]string{
		"failed": strconv.Itoa(result.Failed()),
		"bytes":  strconv.FormatInt(result.Bytes(), 10),
	})
	return result, nil
}

// install downloads one table before touching its registration, so a failed
// download leaves the previous registration in place.
func (c *CustomTables) install(ctx context.Context, t tables.TableInfo) TableOutcome {
	outcome := TableOutcome{Table: t, URL: c.fetcher.URL(t.Path), LocalPath: c.LocalPath(t)}

	data, err := c.fetcher.FetchPath(ctx, t.Path)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	registered, err := c.registry.Has(ctx, t.Name)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	if registered {
		util.DebugLog("Tables: %s is already registered, removing it", t.Name)
		if err := c.registry.Delete(ctx, t.Name); err != nil {
			outcome.Err = err
			return outcome
		}
		outcome.Replaced = true
	}

	if _, err := os.Stat(outcome.LocalPath); err == nil {
		outcome.Overwritten = true
	}
	if err := util.WriteFileAtomic(outcome.LocalPath, data, 0644); err != nil {
		outcome.Err = fmt.Errorf("failed to write %s: %w", outcome.LocalPath, err)
		return outcome
	}
	outcome.Bytes = int64(len(data))

	local := t
	local.Path = outcome.LocalPath
	if abs, err := filepath.Abs(outcome.LocalPath); err == nil {
		local.Path = abs
	}
	if err := c.registry.Register(ctx, local); err != nil {
		outcome.Err = err
		return outcome
	}
	return outcome
}
