// Package pathmap records which Drive folder each local directory became
// during a single upload run.
package pathmap

import (
	"fmt"
	"sort"
)

// Map is a local directory path to remote folder ID table. Keys are exact
// and case-sensitive. An entry, once set, never changes. Map is not safe
// for concurrent use.
type Map struct {
	ids map[string]string
}

// New returns an empty Map.
func New() *Map {
	return &Map{ids: make(map[string]string)}
}

// Get returns the remote ID recorded for path.
func (m *Map) Get(path string) (string, bool) {
	id, ok := m.ids[path]
	return id, ok
}

// Put records path -> id. Re-recording the same pair is a no-op; recording
// a different ID for an existing path is refused.
func (m *Map) Put(path, id string) error {
	if id == "" {
		return fmt.Errorf("pathmap: empty id for %q", path)
	}
	if existing, ok := m.ids[path]; ok {
		if existing == id {
			return nil
		}
		return fmt.Errorf("pathmap: %q already mapped to %s, refusing %s", path, existing, id)
	}
	m.ids[path] = id
	return nil
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.ids)
}

// Snapshot returns a copy of the table.
func (m *Map) Snapshot() map[string]string {
	out := make(map[string]string, len(m.ids))
	for k, v := range m.ids {
		out[k] = v
	}
	return out
}

// Paths returns every key in sorted order.
func (m *Map) Paths() []string {
	paths := make([]string, 0, len(m.ids))
	for k := range m.ids {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths
}
