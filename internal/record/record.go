// Package record converts posts to structured records and back.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"golang.org/x/text/unicode/norm"
)

// ColumnFields maps the post columns stored outside post_content to record
// fields.
var ColumnFields = map[string]string{
	"post_author":   "createdby",
	"post_date":     "creation",
	"post_modified": "lastupdate",
	"post_title":    "posttitle",
	"post_status":   "status",
	"post_name":     "slug",
	"post_parent":   "parent",
	"post_excerpt":  "type",
}

// RenamedFields lists fields renamed since the 2015 schema, old name first.
var RenamedFields = map[string]string{
	"organisation": "corporation",
	"event":        "context",
	"owner":        "source",
}

// ObsoleteFields are dropped whatever the type.
var ObsoleteFields = []string{"imported", "errors"}

// Record is a decoded post.
type Record struct {
	ID     int64
	Fields map[string]any
}

// Type returns the record sub-type (article, book...).
func (r *Record) Type() string {
	return r.String("type")
}

// String returns a field as a string, "" when missing.
func (r *Record) String(field string) string {
	return stringValue(r.Fields[field])
}

// Set replaces a field.
func (r *Record) Set(field string, v any) {
	r.Fields[field] = v
}

// ReferenceTypes tells which record types are bibliographic references.
type ReferenceTypes interface {
	IsReference(typeName string) bool
}

// Database decodes and encodes the posts of one post type using the grids
// of its settings.
type Database struct {
	settings  *schema.DatabaseSettings
	postType  string
	reference ReferenceTypes
}

// NewDatabase wraps database settings. postType is the post_type given to
// the records it encodes.
func NewDatabase(settings *schema.DatabaseSettings, postType string, reference ReferenceTypes) *Database {
	return &Database{settings: settings, postType: postType, reference: reference}
}

// PostType returns the post_type of the database.
func (d *Database) PostType() string {
	return d.postType
}

// Settings returns the database settings.
func (d *Database) Settings() *schema.DatabaseSettings {
	return d.settings
}

// IsReference reports whether the record is a bibliographic reference.
func (d *Database) IsReference(r *Record) bool {
	return d.reference != nil && d.reference.IsReference(r.Type())
}

// FromPost decodes a post. The record type is read from post_excerpt and
// must be declared by the database. Fields written by older versions are
// upgraded: renamed fields take their new name, obsolete fields and fields
// unknown to the base grid are dropped, single values of repeatable fields
// become lists.
func (d *Database) FromPost(post store.Post) (*Record, error) {
	typeName := post["post_excerpt"]
	ts, ok := d.settings.Type(typeName)
	if !ok {
		return nil, fmt.Errorf("post %s: record type %q: %w", post["ID"], typeName, util.ErrUnknownType)
	}
	base, ok := ts.Grid(schema.GridBase)
	if !ok {
		return nil, fmt.Errorf("type %q has no base grid: %w", typeName, util.ErrInvalidConfig)
	}

	fields := make(map[string]any)
	if content := strings.TrimSpace(post["post_content"]); content != "" {
		dec := json.NewDecoder(strings.NewReader(content))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("post %s: post_content is not a JSON object: %w", post["ID"], util.ErrValidation)
		}
	}
	for col, field := range ColumnFields {
		if v, ok := post[col]; ok {
			fields[field] = v
		}
	}

	upgrade(fields, base)
	return &Record{ID: post.ID(), Fields: fields}, nil
}

func upgrade(fields map[string]any, base schema.Grid) {
	for oldName, newName := range RenamedFields {
		v, ok := fields[oldName]
		if !ok {
			continue
		}
		if _, exists := fields[newName]; !exists {
			fields[newName] = v
		}
		delete(fields, oldName)
	}
	for _, name := range ObsoleteFields {
		delete(fields, name)
	}
	for name, v := range fields {
		if !base.HasField(name) {
			util.DebugLog("Record: dropping unknown field %q", name)
			delete(fields, name)
			continue
		}
		if base.IsRepeatable(name) {
			if _, isList := v.([]any); !isList && !isEmpty(v) {
				fields[name] = []any{v}
			}
		}
	}
}

// BeforeSave updates derived fields. The post title is the normalized
// record title when the record has one.
func (d *Database) BeforeSave(r *Record) {
	title := strings.TrimSpace(r.String("title"))
	if title == "" {
		return
	}
	r.Fields["posttitle"] = norm.NFC.String(title)
}

// Encode turns a record back into post columns. Column fields go to their
// column, everything else is stored as JSON in post_content without empty
// values. The ID is not part of the result.
func (d *Database) Encode(r *Record) (map[string]string, error) {
	post := make(map[string]string, len(ColumnFields)+1)
	columnField := make(map[string]bool, len(ColumnFields))
	for col, field := range ColumnFields {
		columnField[field] = true
		if v, ok := r.Fields[field]; ok {
			post[col] = stringValue(v)
		}
	}

	content := make(map[string]any)
	for name, v := range r.Fields {
		if columnField[name] {
			continue
		}
		if v, ok := compact(v); ok {
			content[name] = v
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(content); err != nil {
		return nil, fmt.Errorf("record %d: failed to encode: %w", r.ID, err)
	}
	post["post_content"] = strings.TrimSuffix(buf.String(), "\n")
	return post, nil
}

// Diff returns the entries of updated whose value differs from the
// original post.
func Diff(original store.Post, updated map[string]string) map[string]string {
	changed := make(map[string]string)
	for col, v := range updated {
		if old, ok := original[col]; ok && old == v {
			continue
		}
		changed[col] = v
	}
	return changed
}

// ChangedColumns returns the sorted column names of a diff.
func ChangedColumns(diff map[string]string) []string {
	return slices.Sorted(maps.Keys(diff))
}

func stringValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func isEmpty(v any) bool {
	_, ok := compact(v)
	return !ok
}

// compact drops empty values recursively. It reports false when nothing is
// left.
func compact(v any) (any, bool) {
	switch v := v.(type) {
	case nil:
		return nil, false
	case string:
		return v, v != ""
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if item, ok := compact(item); ok {
				out = append(out, item)
			}
		}
		return out, len(out) > 0
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			if item, ok := compact(item); ok {
				out[k] = item
			}
		}
		return out, len(out) > 0
	default:
		return v, true
	}
}
