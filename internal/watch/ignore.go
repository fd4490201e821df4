package watch

import (
	"bufio"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnorePatterns are skipped by every watcher unless replaced.
var DefaultIgnorePatterns = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"vendor/",
	".venv/",
	"__pycache__/",
	".idea/",
	".vscode/",
	"*.swp",
	"*.swo",
	"*~",
	".DS_Store",
	"*.log",
}

// Ignore matches root-relative, slash-separated paths against
// gitignore-style patterns:
//
//	*.log          a base name at any depth
//	/build         only at the root
//	dist/          directories only
//	docs/**/*.md   doublestar globs
//	!keep.log      negation; the last matching pattern wins
type Ignore struct {
	mu       sync.RWMutex
	patterns []ignorePattern
}

type ignorePattern struct {
	raw     string
	glob    string
	negate  bool
	dirOnly bool
}

// NewIgnore creates a matcher with patterns. Invalid patterns are skipped.
func NewIgnore(patterns ...string) *Ignore {
	ig := &Ignore{}
	for _, p := range patterns {
		_ = ig.Add(p)
	}
	return ig
}

// Add adds one pattern. Blank lines and comments are ignored.
func (ig *Ignore) Add(pattern string) error {
	pattern = strings.TrimRight(pattern, " \t")
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return nil
	}
	p := ignorePattern{raw: pattern}
	if rest, ok := strings.CutPrefix(pattern, "!"); ok {
		p.negate = true
		pattern = rest
	}
	if rest, ok := strings.CutSuffix(pattern, "/"); ok {
		p.dirOnly = true
		pattern = rest
	}
	if rest, ok := strings.CutPrefix(pattern, "/"); ok {
		pattern = rest
	} else if !strings.Contains(pattern, "/") {
		pattern = "**/" + pattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return doublestar.ErrBadPattern
	}
	p.glob = pattern

	ig.mu.Lock()
	ig.patterns = append(ig.patterns, p)
	ig.mu.Unlock()
	return nil
}

// AddFile adds every line of a .gitignore-style file. A missing file is
// not an error.
func (ig *Ignore) AddFile(name string) error {
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ig.Add(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Match reports whether rel is ignored. A path inside an ignored
// directory is ignored too.
func (ig *Ignore) Match(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(path.Clean(rel), "./")
	if rel == "." || rel == "" {
		return false
	}

	ig.mu.RLock()
	defer ig.mu.RUnlock()

	// Check each ancestor directory first, then the path itself.
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if ig.matchOne(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return ig.matchOne(rel, isDir)
}

func (ig *Ignore) matchOne(rel string, isDir bool) bool {
	ignored := false
	for _, p := range ig.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if ok, _ := doublestar.Match(p.glob, rel); ok {
			ignored = !p.negate
		}
	}
	return ignored
}

// Patterns returns the patterns as they were added.
func (ig *Ignore) Patterns() []string {
	ig.mu.RLock()
	defer ig.mu.RUnlock()
	out := make([]string, len(ig.patterns))
	for i, p := range ig.patterns {
		out[i] = p.raw
	}
	return out
}
