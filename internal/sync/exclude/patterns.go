// Package exclude matches local paths against user-supplied skip patterns.
package exclude

import (
	"fmt"
	"path"
	"strings"
)

type pattern struct {
	raw     string
	dirOnly bool
	glob    bool
}

// Matcher holds compiled patterns. A nil Matcher excludes nothing.
//
// Pattern forms:
//
//	name/    directories named name (or at relative path name) and everything below
//	*.tmp    glob against the relative path or the base name
//	name     exact relative path or base name
type Matcher struct {
	patterns []pattern
}

// New compiles patterns. Blank entries are ignored; malformed globs are an error.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p := pattern{raw: raw}
		if strings.HasSuffix(raw, "/") {
			p.dirOnly = true
			p.raw = strings.TrimSuffix(raw, "/")
		}
		if strings.ContainsAny(p.raw, "*?[") {
			if _, err := path.Match(p.raw, ""); err != nil {
				return nil, fmt.Errorf("invalid exclude pattern %q: %w", raw, err)
			}
			p.glob = true
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Match reports whether relPath (slash-separated, relative to the walk root)
// should be skipped.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	base := path.Base(relPath)

	for _, p := range m.patterns {
		if p.dirOnly {
			if (isDir && relPath == p.raw) || strings.HasPrefix(relPath, p.raw+"/") {
				return true
			}
			if isDir && p.matches(base) {
				return true
			}
			continue
		}
		if p.matches(relPath) || p.matches(base) {
			return true
		}
	}
	return false
}

func (p pattern) matches(s string) bool {
	if !p.glob {
		return s == p.raw
	}
	ok, _ := path.Match(p.raw, s)
	return ok
}
