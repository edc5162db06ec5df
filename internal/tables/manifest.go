// Package tables reads the Docalist master table and keeps the local table
// registry.
package tables

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/docalist/migration-prisme-2015/internal/util"
)

// TableInfo describes one lookup table.
type TableInfo struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Label      string `json:"label"`
	Format     string `json:"format"`
	Type       string `json:"type"`
	ReadOnly   bool   `json:"readonly"`
	Creation   string `json:"creation,omitempty"`
	Lastupdate string `json:"lastupdate,omitempty"`
}

// BaseName returns the file name part of the table path.
func (t TableInfo) BaseName() string {
	return path.Base(t.Path)
}

// MasterColumns is the header line of a master table.
var MasterColumns = []string{"name", "path", "label", "format", "type", "readonly", "creation", "lastupdate"}

// ParseMaster reads a master table: tab separated, one header line, one table
// per line. Blank lines and lines starting with '#' are ignored. Only the
// name and path columns are required.
func ParseMaster(r io.Reader) ([]TableInfo, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("master table is empty: %w", util.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read master table header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"name", "path"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("master table header has no %q column: %w", required, util.ErrValidation)
		}
	}

	var tables []TableInfo
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read master table: %w", err)
		}
		line, _ := cr.FieldPos(0)

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		t := TableInfo{
			Name:       get("name"),
			Path:       get("path"),
			Label:      get("label"),
			Format:     get("format"),
			Type:       get("type"),
			ReadOnly:   parseFlag(get("readonly")),
			Creation:   get("creation"),
			Lastupdate: get("lastupdate"),
		}
		if t.Name == "" || t.Path == "" {
			return nil, fmt.Errorf("master table line %d: name and path are required: %w", line, util.ErrValidation)
		}
		if t.Label == "" {
			t.Label = t.Name
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// ParseMasterFile parses the master table stored at path.
func ParseMasterFile(path string) ([]TableInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMaster(f)
}

// CustomTables keeps the site specific tables: the ones that are not read
// only. Manifest order is preserved.
func CustomTables(tables []TableInfo) []TableInfo {
	return slices.DeleteFunc(slices.Clone(tables), func(t TableInfo) bool {
		return t.ReadOnly
	})
}

func parseFlag(s string) bool {
	if s == "" {
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	switch strings.ToLower(s) {
	case "yes", "oui", "y":
		return true
	}
	return false
}
