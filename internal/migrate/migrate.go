// Package migrate implements the Prisme 2015 migration tools. Each tool
// inspects the current state (Preview, List, Choices...) and only mutates it
// in Execute or Convert. Collaborators are passed in explicitly.
package migrate

import (
	"context"
	"fmt"
	"iter"

	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/docalist/migration-prisme-2015/internal/tables"
)

// RecordStore is the posts table.
type RecordStore interface {
	CountPostTypes(ctx context.Context, m store.TypeMatch) ([]store.TypeCount, error)
	CountPostsByType(ctx context.Context, postType string) (int, error)
	DeletePosts(ctx context.Context, m store.TypeMatch) (int64, error)
	PostsOfType(ctx context.Context, postType string, batchSize int) iter.Seq2[store.Post, error]
	UpdatePost(ctx context.Context, id int64, fields map[string]string) (store.UpdateResult, error)
}

// SettingsStore holds JSON settings objects by name.
type SettingsStore interface {
	HasOption(ctx context.Context, name string) (bool, error)
	LoadOptionRaw(ctx context.Context, name string) ([]byte, error)
	SaveOption(ctx context.Context, name string, v any) error
	DeleteOption(ctx context.Context, name string) error
}

// TableFetcher downloads files from the remote site.
type TableFetcher interface {
	FetchPath(ctx context.Context, path string) ([]byte, error)
	URL(path string) string
}

// TableRegistry is the local list of lookup tables.
type TableRegistry interface {
	Has(ctx context.Context, name string) (bool, error)
	Register(ctx context.Context, t tables.TableInfo) error
	Delete(ctx context.Context, name string) error
}

// SchemaCatalog provides the default grids of the registered record types.
type SchemaCatalog interface {
	schema.GridSource
	Has(typeName string) bool
	IsReference(typeName string) bool
}

// Tool describes a migration tool.
type Tool struct {
	Command     string
	Name        string
	Description string
}

// Tools lists the tools in the order they are meant to be run.
var Tools = []Tool{
	{
		Command:     "cleanup",
		Name:        "DeleteOldDclPosts",
		Description: "Supprime les posts des bases docalist expérimentales (post_type dcl* autres que dclref*).",
	},
	{
		Command:     "tables",
		Name:        "DownloadPrismeCustomTables",
		Description: "Télécharge les tables personnalisées du site Prisme et les déclare dans le gestionnaire de tables.",
	},
	{
		Command:     "settings",
		Name:        "ImportDocalistBiblioSettings",
		Description: "Importe les anciens paramètres docalist-biblio dans docalist-data (écrase les paramètres existants).",
	},
	{
		Command:     "convert",
		Name:        "MigrationPrisme2015",
		Description: "Convertit les notices d'une ancienne base dclref* vers le nouveau format docalist-data.",
	},
}

// Diagnostic is a message produced while migrating settings. Code is one
// of INF, TBL, CAP or ERR.
type Diagnostic struct {
	Code    string
	Message string
}

const (
	DiagInfo       = "INF"
	DiagTable      = "TBL"
	DiagCapability = "CAP"
	DiagError      = "ERR"
)

func (d Diagnostic) String() string {
	return d.Code + " - " + d.Message
}

func diag(code, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Message: fmt.Sprintf(format, args...)}
}
