package tables

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/docalist/migration-prisme-2015/internal/util"
)

// RegistryOption is the option holding the table registry.
const RegistryOption = "docalist-table-manager"

// OptionStore is the part of the settings store the registry needs.
type OptionStore interface {
	LoadOption(ctx context.Context, name string, v any) error
	SaveOption(ctx context.Context, name string, v any) error
}

// Registry is the list of tables known to the site, keyed by table name.
// Every mutation is saved immediately. It assumes a single writer.
type Registry struct {
	options OptionStore
}

// NewRegistry returns a registry stored in options.
func NewRegistry(options OptionStore) *Registry {
	return &Registry{options: options}
}

func (r *Registry) load(ctx context.Context) (map[string]TableInfo, error) {
	entries := make(map[string]TableInfo)
	err := r.options.LoadOption(ctx, RegistryOption, &entries)
	if errors.Is(err, util.ErrNotFound) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load table registry: %w", err)
	}
	return entries, nil
}

func (r *Registry) save(ctx context.Context, entries map[string]TableInfo) error {
	if err := r.options.SaveOption(ctx, RegistryOption, entries); err != nil {
		return fmt.Errorf("failed to save table registry: %w", err)
	}
	return nil
}

// Has reports whether a table with this name is registered.
func (r *Registry) Has(ctx context.Context, name string) (bool, error) {
	entries, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := entries[name]
	return ok, nil
}

// Get returns a registered table.
func (r *Registry) Get(ctx context.Context, name string) (TableInfo, error) {
	entries, err := r.load(ctx)
	if err != nil {
		return TableInfo{}, err
	}
	t, ok := entries[name]
	if !ok {
		return TableInfo{}, fmt.Errorf("table %q: %w", name, util.ErrNotFound)
	}
	return t, nil
}

// All returns the registered tables sorted by name.
func (r *Registry) All(ctx context.Context) ([]TableInfo, error) {
	entries, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	all := make([]TableInfo, 0, len(entries))
	for _, t := range entries {
		all = append(all, t)
	}
	slices.SortFunc(all, func(a, b TableInfo) int { return cmp.Compare(a.Name, b.Name) })
	return all, nil
}

// Register adds a table. Registering a name twice is an error: delete the
// old entry first.
func (r *Registry) Register(ctx context.Context, t TableInfo) error {
	if t.Name == "" {
		return fmt.Errorf("table name is required: %w", util.ErrValidation)
	}
	entries, err := r.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := entries[t.Name]; ok {
		return fmt.Errorf("table %q is already registered: %w", t.Name, util.ErrValidation)
	}
	entries[t.Name] = t
	return r.save(ctx, entries)
}

// Delete removes a table from the registry. The table file is left alone.
func (r *Registry) Delete(ctx context.Context, name string) error {
	entries, err := r.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := entries[name]; !ok {
		return fmt.Errorf("table %q: %w", name, util.ErrNotFound)
	}
	delete(entries, name)
	return r.save(ctx, entries)
}
