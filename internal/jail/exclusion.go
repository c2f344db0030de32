package jail

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// DefaultFilePattern rejects names that a web server could execute or render
// as active content.
const DefaultFilePattern = `(?i)\.(phps?|pht(ml)?|phl|.?html?|xml|js|htaccess)[0-9]*$`

// ExclusionSet is a directory-prefix denylist plus an optional filename
// regex. Directories may be added after construction but never removed.
type ExclusionSet struct {
	mu      sync.RWMutex
	root    string
	dirs    []string
	pattern *regexp.Regexp
}

// NewExclusionSet compiles pattern (empty disables filename checks) and
// records dirs. Relative dirs are resolved against the jail root by New.
func NewExclusionSet(dirs []string, pattern string) (*ExclusionSet, error) {
	ex := &ExclusionSet{}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid excluded file pattern %q: %w", pattern, err)
		}
		ex.pattern = re
	}
	for _, d := range dirs {
		ex.AddDir(d)
	}
	return ex, nil
}

// AddDir appends a directory prefix. Once the set belongs to a jail,
// relative prefixes are taken relative to its root.
func (e *ExclusionSet) AddDir(dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dir = filepath.Clean(dir)
	if e.root != "" {
		dir = canonicalDir(e.root, dir)
	}
	e.dirs = append(e.dirs, dir)
}

// Dirs returns a copy of the directory prefixes in insertion order.
func (e *ExclusionSet) Dirs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.dirs...)
}

func (e *ExclusionSet) coversDir(p string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, d := range e.dirs {
		if within(d, p) {
			return true
		}
	}
	return false
}

func (e *ExclusionSet) matchesFile(name string) bool {
	return e.pattern != nil && e.pattern.MatchString(name)
}

// canonicalize rewrites relative prefixes against root and resolves
// symlinks where the directory exists.
func (e *ExclusionSet) canonicalize(root string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.root = root
	for i, d := range e.dirs {
		e.dirs[i] = canonicalDir(root, d)
	}
}

func canonicalDir(root, d string) string {
	if !filepath.IsAbs(d) {
		d = filepath.Join(root, d)
	}
	if real, err := filepath.EvalSymlinks(d); err == nil {
		d = real
	}
	return d
}
