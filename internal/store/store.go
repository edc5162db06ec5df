package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver (live WordPress databases)
	_ "modernc.org/sqlite"             // SQLite driver
)

const (
	currentSchemaVersion = 1

	// DriverSQLite is a local copy of the WordPress tables.
	DriverSQLite = "sqlite"
	// DriverMySQL is a live WordPress database; its schema is owned by WordPress.
	DriverMySQL = "mysql"

	// DefaultTablePrefix is the WordPress default $table_prefix.
	DefaultTablePrefix = "wp_"
)

// Store gives access to the WordPress posts and options tables
type Store struct {
	db     *sql.DB
	driver string
	prefix string
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	Driver      string // DriverSQLite (default) or DriverMySQL
	DSN         string // File path for SQLite, go-sql-driver DSN for MySQL
	TablePrefix string // Defaults to DefaultTablePrefix
}

// Open opens or creates a SQLite database at the given path with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(&OpenOptions{Driver: DriverSQLite, DSN: path})
}

// OpenWithOptions opens a database with custom options
func OpenWithOptions(opts *OpenOptions) (*Store, error) {
	if opts == nil || opts.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	prefix := opts.TablePrefix
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	if !validPrefix(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", opts.DSN)
	case DriverMySQL:
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite works best with a single writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	store := &Store{db: db, driver: driver, prefix: prefix}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		if err := store.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return store, nil
}

func validPrefix(p string) bool {
	for _, r := range p {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database driver name
func (s *Store) Driver() string {
	return s.driver
}

// PostsTable returns the quoted name of the posts table
func (s *Store) PostsTable() string {
	return "`" + s.prefix + "posts`"
}

// OptionsTable returns the quoted name of the options table
func (s *Store) OptionsTable() string {
	return "`" + s.prefix + "options`"
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	err = db.QueryRow("SELECT sqlite_version()").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on SQLite databases and checks
// that the WordPress tables can be queried.
func (s *Store) CheckIntegrity(ctx context.Context) error {
	if s.driver == DriverSQLite {
		var result string
		if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check query failed: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity check failed: %s", result)
		}
	}

	for _, table := range []string{s.PostsTable(), s.OptionsTable()} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return fmt.Errorf("table %s is not readable: %w", table, err)
		}
	}
	return nil
}

// migrate applies database migrations
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Schema v1 - WordPress posts and options tables
	if version < 1 {
		for _, stmt := range splitStatements(strings.ReplaceAll(schemaV1, "{prefix}", s.prefix)) {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply schema v1: %w", err)
			}
		}
		if err := s.setSchemaVersion(tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
