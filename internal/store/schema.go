package store

// Schema v1 - local SQLite copy of the WordPress tables used by the tools.
// Column names and defaults follow wp_posts / wp_options; {prefix} is the
// table prefix.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS {prefix}posts (
  ID INTEGER PRIMARY KEY AUTOINCREMENT,
  post_author INTEGER NOT NULL DEFAULT 0,
  post_date TEXT NOT NULL DEFAULT '0000-00-00 00:00:00',
  post_modified TEXT NOT NULL DEFAULT '0000-00-00 00:00:00',
  post_title TEXT NOT NULL DEFAULT '',
  post_content TEXT NOT NULL DEFAULT '',
  post_excerpt TEXT NOT NULL DEFAULT '',
  post_status TEXT NOT NULL DEFAULT 'publish',
  post_name TEXT NOT NULL DEFAULT '',
  post_parent INTEGER NOT NULL DEFAULT 0,
  post_type TEXT NOT NULL DEFAULT 'post'
);

CREATE INDEX IF NOT EXISTS {prefix}posts_type_status_date ON {prefix}posts(post_type, post_status, post_date, ID);

CREATE TABLE IF NOT EXISTS {prefix}options (
  option_id INTEGER PRIMARY KEY AUTOINCREMENT,
  option_name TEXT UNIQUE NOT NULL,
  option_value TEXT NOT NULL,
  autoload TEXT NOT NULL DEFAULT 'yes'
);
`
