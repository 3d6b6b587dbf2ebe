package transclude

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// Manifest is the ordered list of files pulled into one expansion. A path
// is recorded the first time it is read; later encounters are ignored.
type Manifest struct {
	paths []string
	seen  map[string]struct{}
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{seen: make(map[string]struct{})}
}

// Add appends path unless it is already listed and reports whether it was
// appended.
func (m *Manifest) Add(path string) bool {
	if _, ok := m.seen[path]; ok {
		return false
	}
	m.seen[path] = struct{}{}
	m.paths = append(m.paths, path)
	return true
}

// Contains reports whether path is listed.
func (m *Manifest) Contains(path string) bool {
	if m == nil {
		return false
	}
	_, ok := m.seen[path]
	return ok
}

// Len returns the number of listed paths.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.paths)
}

// Paths returns a copy of the listed paths in first-encounter order.
func (m *Manifest) Paths() []string {
	if m == nil {
		return []string{}
	}
	return append([]string{}, m.paths...)
}

// Relative returns the paths relative to base. Paths that cannot be made
// relative are returned unchanged.
func (m *Manifest) Relative(base string) []string {
	out := m.Paths()
	for i, p := range out {
		if rel, err := filepath.Rel(base, p); err == nil {
			out[i] = filepath.ToSlash(rel)
		}
	}
	return out
}

// String joins the paths with newlines, one file per line.
func (m *Manifest) String() string {
	return strings.Join(m.Paths(), "\n")
}

func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Paths())
}
