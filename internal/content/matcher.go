package content

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns matches the markdown family underneath the content base.
var DefaultPatterns = []string{"**/*.{md,markdown,mdx,mdoc}"}

// Matcher answers membership queries for base-relative slash paths and
// enumerates matching files under a base directory.
type Matcher struct {
	include  []string
	exclude  []string
	reserved []string
}

// NewMatcher compiles include patterns. A leading "!" marks a pattern as an
// exclusion. Reserved names never match regardless of patterns, so the
// loader's own files are not ingested as content.
func NewMatcher(patterns []string, reserved ...string) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	m := &Matcher{reserved: reserved}
	for _, p := range patterns {
		neg := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
		if neg {
			m.exclude = append(m.exclude, p)
		} else {
			m.include = append(m.include, p)
		}
	}
	if len(m.include) == 0 {
		return nil, fmt.Errorf("no include patterns")
	}
	return m, nil
}

// Matches reports whether rel, a slash path relative to the base, is a
// candidate entry. Paths escaping the base never match.
func (m *Matcher) Matches(rel string) bool {
	rel = path.Clean(strings.TrimPrefix(rel, "./"))
	if rel == "." || rel == "" || path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	if slices.Contains(m.reserved, path.Base(rel)) {
		return false
	}
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	for _, p := range m.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Enumerate walks base and returns matching file paths relative to it, in
// pattern order, deduplicated.
func (m *Matcher) Enumerate(base string) ([]string, error) {
	fsys := os.DirFS(base)
	seen := make(map[string]struct{})
	var out []string

	for _, p := range m.include {
		err := doublestar.GlobWalk(fsys, p, func(rel string, d fs.DirEntry) error {
			if d.IsDir() {
				return nil
			}
			if _, dup := seen[rel]; dup || !m.Matches(rel) {
				return nil
			}
			seen[rel] = struct{}{}
			out = append(out, rel)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
	}
	return out, nil
}
