// Package pathexpr evaluates dot-separated paths ("author.fields.role.table")
// against trees of nested map[string]any values, as produced by decoding JSON
// or YAML documents.
//
// Lookups never panic: a missing segment yields a *PathError wrapping
// ErrPathNotFound so callers decide between failing fast and skipping.
package pathexpr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPathNotFound is wrapped by every *PathError.
var ErrPathNotFound = errors.New("path not found")

// Tree is a node of a key/value document.
type Tree = map[string]any

// Path is a parsed dot-path.
type Path []string

// PathError reports the segment at which a path could not be resolved.
type PathError struct {
	Path    Path
	Segment string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("key %q not found (segment %q)", e.Path.String(), e.Segment)
}

func (e *PathError) Unwrap() error { return ErrPathNotFound }

// Parse splits a dot-path. Empty paths and empty segments are rejected.
func Parse(s string) (Path, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid path %q: empty segment", s)
		}
	}
	return Path(parts), nil
}

// MustParse is Parse for static paths.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string { return strings.Join(p, ".") }

// Head returns the first segment (the field name in a grid).
func (p Path) Head() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Get returns the value stored at p. Every segment, including the last one,
// must exist as a key of a Tree.
func Get(root Tree, p Path) (any, error) {
	var cur any = root
	for _, seg := range p {
		node, ok := asTree(cur)
		if !ok {
			return nil, &PathError{Path: p, Segment: seg}
		}
		v, ok := node[seg]
		if !ok {
			return nil, &PathError{Path: p, Segment: seg}
		}
		cur = v
	}
	return cur, nil
}

// Set replaces the value stored at p. Like Get, every segment must already
// exist: Set updates a document, it never creates structure.
func Set(root Tree, p Path, value any) error {
	if len(p) == 0 {
		return fmt.Errorf("empty path")
	}
	var cur any = root
	for i, seg := range p {
		node, ok := asTree(cur)
		if !ok {
			return &PathError{Path: p, Segment: seg}
		}
		v, ok := node[seg]
		if !ok {
			return &PathError{Path: p, Segment: seg}
		}
		if i == len(p)-1 {
			node[seg] = value
			return nil
		}
		cur = v
	}
	return nil
}

// Has reports whether p resolves in root.
func Has(root Tree, p Path) bool {
	_, err := Get(root, p)
	return err == nil
}

// Clone deep-copies a tree. Slices and nested trees are copied, scalars shared.
func Clone(t Tree) Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for k, v := range t {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func asTree(v any) (Tree, bool) {
	t, ok := v.(map[string]any)
	return t, ok && t != nil
}
