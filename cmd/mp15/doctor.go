package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure mp15 can operate correctly.

This command checks:
- SQLite version (built-in driver)
- Database accessibility, integrity and WordPress tables
- Registered record types
- Tables directory permissions
- Post type prefixes

Use this command to troubleshoot issues before running the migration tools.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== MP15 Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	results = append(results, checkSQLite())

	driver := GetConfigString("driver", store.DriverSQLite)
	dsn := GetConfigString("dsn", "wordpress.db")
	prefix := GetConfigString("table-prefix", store.DefaultTablePrefix)
	results = append(results, checkDatabase(driver, dsn, prefix))

	results = append(results, checkCatalog())
	results = append(results, checkTablesDirectory(GetConfigString("tables-dir", "tables")))
	results = append(results, checkPrefixes(
		GetConfigString("probe-prefix", "dcl"),
		GetConfigString("legacy-prefix", "dclref"),
		GetConfigString("current-prefix", "db"),
	))

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running mp15.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! Ready to migrate.")
	}
	if viper.ConfigFileUsed() != "" {
		util.InfoLog("Config file: %s", viper.ConfigFileUsed())
	}

	return nil
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite doesn't require an external sqlite
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies the WordPress database can be opened and queried
func checkDatabase(driver, dsn, prefix string) checkResult {
	if dsn == "" {
		return checkResult{
			name:    "Database",
			error:   true,
			message: "no database specified (use --dsn flag or config)",
		}
	}

	label := dsn
	if driver == store.DriverSQLite {
		info, err := os.Stat(dsn)
		if err != nil {
			if os.IsNotExist(err) {
				return checkResult{
					name:    "Database",
					warning: true,
					message: fmt.Sprintf("%s does not exist (an empty database would be created)", dsn),
				}
			}
			return checkResult{
				name:    "Database",
				error:   true,
				message: fmt.Sprintf("cannot access %s: %v", dsn, err),
			}
		}
		if !info.Mode().IsRegular() {
			return checkResult{
				name:    "Database",
				error:   true,
				message: fmt.Sprintf("%s is not a regular file", dsn),
			}
		}
		label = fmt.Sprintf("%s (%s)", dsn, humanize.Bytes(uint64(info.Size())))
	} else {
		label = driver + " database"
	}

	db, err := store.OpenWithOptions(&store.OpenOptions{Driver: driver, DSN: dsn, TablePrefix: prefix})
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", label, err),
		}
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.CheckIntegrity(ctx); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: err.Error(),
		}
	}

	var posts int64
	if err := db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+db.PostsTable()).Scan(&posts); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot count posts: %v", err),
		}
	}

	return checkResult{
		name:    "Database",
		message: fmt.Sprintf("%s, %s posts", label, humanize.Comma(posts)),
	}
}

// checkCatalog verifies the registered record types can be loaded
func checkCatalog() checkResult {
	catalog, err := schema.DefaultCatalog()
	if err != nil {
		return checkResult{
			name:    "Record types",
			error:   true,
			message: err.Error(),
		}
	}
	return checkResult{
		name:    "Record types",
		message: fmt.Sprintf("%d registered", len(catalog.Types())),
	}
}

// checkTablesDirectory verifies the tables directory is writable
func checkTablesDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Try to create it
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Tables directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Tables directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Tables directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Tables directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	// Check write permission by creating a temp file
	testFile := filepath.Join(path, ".mp15_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Tables directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Tables directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkPrefixes verifies the post type prefixes are consistent
func checkPrefixes(probe, legacy, current string) checkResult {
	name := "Post type prefixes"
	switch {
	case probe == "" || legacy == "" || current == "":
		return checkResult{name: name, error: true, message: "probe, legacy and current prefixes are required"}
	case legacy == current:
		return checkResult{name: name, error: true, message: fmt.Sprintf("legacy and current prefixes are both %q", legacy)}
	case len(legacy) < len(probe) || legacy[:len(probe)] != probe:
		return checkResult{
			name:    name,
			warning: true,
			message: fmt.Sprintf("legacy prefix %q does not start with %q: cleanup will not spare the legacy posts", legacy, probe),
		}
	}
	return checkResult{
		name:    name,
		message: fmt.Sprintf("cleanup %s* except %s*, convert %s* to %s*", probe, legacy, legacy, current),
	}
}
