package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/docalist/migration-prisme-2015/internal/util"
)

// Options are stored as JSON documents in option_value, the way the docalist
// settings repository does.

// HasOption reports whether the option exists.
func (s *Store) HasOption(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+s.OptionsTable()+" WHERE option_name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check option %s: %w", name, err)
	}
	return n > 0, nil
}

// LoadOptionRaw returns the stored value of an option. A missing option
// returns an error wrapping util.ErrNotFound.
func (s *Store) LoadOptionRaw(ctx context.Context, name string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT option_value FROM "+s.OptionsTable()+" WHERE option_name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("option %s: %w", name, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load option %s: %w", name, err)
	}
	return []byte(value), nil
}

// LoadOption decodes a JSON option into v.
func (s *Store) LoadOption(ctx context.Context, name string, v any) error {
	raw, err := s.LoadOptionRaw(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("option %s is not valid JSON: %w", name, err)
	}
	return nil
}

// SaveOption replaces the whole option with the JSON encoding of v. The old
// row is deleted and a new one inserted in the same transaction, so no field
// of a previous value survives.
func (s *Store) SaveOption(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode option %s: %w", name, err)
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.OptionsTable()+" WHERE option_name = ?", name); err != nil {
			return fmt.Errorf("failed to replace option %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+s.OptionsTable()+" (option_name, option_value, autoload) VALUES (?, ?, 'no')",
			name, string(data)); err != nil {
			return fmt.Errorf("failed to save option %s: %w", name, err)
		}
		return nil
	})
}

// DeleteOption removes an option. Deleting a missing option is not an error.
func (s *Store) DeleteOption(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.OptionsTable()+" WHERE option_name = ?", name); err != nil {
		return fmt.Errorf("failed to delete option %s: %w", name, err)
	}
	return nil
}
