// Package discovery finds task definitions in a project tree.
//
// Sources understand one build-file format each (Makefile, Taskfile,
// package.json, .ptask/tasks.toml). Discovery walks the tree, hands each
// matching file to the highest-priority source and collects the resulting
// definitions. Graph turns definitions into runnable process tasks.
package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/runners/process"
)

// Group categorizes definitions.
type Group string

const (
	GroupBuild Group = "build"
	GroupTest  Group = "test"
	GroupRun   Group = "run"
	GroupClean Group = "clean"
	GroupLint  Group = "lint"
	GroupOther Group = "other"
)

// Definition is a task found in a build file.
type Definition struct {
	// ID is unique across a discovery result. Filled in from the source,
	// file and name when the source leaves it empty.
	ID string

	// Name is the name used in the build file and in DependsOn lists.
	Name string

	Description string

	// Source is the name of the source that produced the definition.
	Source string

	// SourceFile is the file the definition was read from.
	SourceFile string

	Kind    process.Kind
	Group   Group
	Command string
	Args    []string

	// Cwd defaults to the directory holding SourceFile.
	Cwd string
	Env map[string]string

	// DependsOn lists names of definitions that must run first.
	DependsOn []string

	ProblemMatcher string

	// Outputs are files the task generates, relative to Cwd.
	Outputs []string

	// IsDefault marks the default task of its group.
	IsDefault bool
}

// Source discovers definitions in one kind of file.
type Source interface {
	// Name returns the source name (e.g. "makefile", "npm").
	Name() string

	// Patterns returns doublestar globs for the files this source handles.
	// Patterns without a slash match the base name; the rest match the
	// slash-separated path relative to the discovery root.
	Patterns() []string

	// Priority orders sources claiming the same file; higher wins.
	Priority() int

	// Discover parses path.
	Discover(ctx context.Context, path string) ([]*Definition, error)
}

// Options configures one discovery pass.
type Options struct {
	// Root is the directory to search.
	Root string

	// MaxDepth is the deepest directory level searched (0 = root only).
	MaxDepth int

	// ExcludeDirs are directory names or globs that are never entered.
	ExcludeDirs []string

	// Sources restricts discovery to the named sources. Empty means all.
	Sources []string

	// Timeout bounds the whole pass. Zero means no limit.
	Timeout time.Duration
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions(root string) Options {
	return Options{
		Root:     root,
		MaxDepth: 3,
		ExcludeDirs: []string{
			"node_modules",
			".git",
			"vendor",
			".venv",
			"__pycache__",
			"dist",
			".cache",
		},
		Timeout: 30 * time.Second,
	}
}

func (o Options) cacheKey() string {
	return fmt.Sprintf("%s|%d|%s|%s", o.Root, o.MaxDepth,
		strings.Join(o.ExcludeDirs, ","), strings.Join(o.Sources, ","))
}

// Result holds the definitions of one discovery pass.
type Result struct {
	// Definitions are sorted by ID.
	Definitions []*Definition
	BySource    map[string][]*Definition
	ByGroup     map[Group][]*Definition

	// Errors are per-file failures; they do not fail the pass.
	Errors []*SourceError

	Duration  time.Duration
	Timestamp time.Time
}

func newResult() *Result {
	return &Result{
		BySource: make(map[string][]*Definition),
		ByGroup:  make(map[Group][]*Definition),
	}
}

func (r *Result) add(d *Definition) {
	r.Definitions = append(r.Definitions, d)
	r.BySource[d.Source] = append(r.BySource[d.Source], d)
	r.ByGroup[d.Group] = append(r.ByGroup[d.Group], d)
}

// Default cache settings.
const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = 5 * time.Minute
)

// Option configures a Discovery.
type Option func(*Discovery)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Discovery) { d.log = logging.WithComponent(l, "discovery") }
}

// WithCache sets the size and time-to-live of the result cache.
// A size of zero disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(d *Discovery) {
		d.cacheSize = size
		d.cacheTTL = ttl
	}
}

// WithConcurrency limits how many files are parsed at once.
func WithConcurrency(n int) Option {
	return func(d *Discovery) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// Discovery manages sources and caches discovery results per root.
type Discovery struct {
	mu      sync.RWMutex
	sources map[string]Source

	cache       *expirable.LRU[string, *Result]
	cacheSize   int
	cacheTTL    time.Duration
	concurrency int
	log         logging.Logger
}

// New creates a Discovery with the given sources registered.
func New(sources []Source, opts ...Option) *Discovery {
	d := &Discovery{
		sources:     make(map[string]Source),
		cacheSize:   DefaultCacheSize,
		cacheTTL:    DefaultCacheTTL,
		concurrency: runtime.GOMAXPROCS(0) * 2,
		log:         logging.WithComponent(nil, "discovery"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cacheSize > 0 {
		d.cache = expirable.NewLRU[string, *Result](d.cacheSize, nil, d.cacheTTL)
	}
	for _, s := range sources {
		d.Register(s)
	}
	return d
}

// Register adds or replaces a source.
func (d *Discovery) Register(s Source) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sources[s.Name()] = s
}

// Unregister removes a source.
func (d *Discovery) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sources, name)
}

// Source returns a registered source.
func (d *Discovery) Source(name string) (Source, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sources[name]
	return s, ok
}

// Sources returns the registered source names, sorted.
func (d *Discovery) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sources))
	for name := range d.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invalidate drops cached results for root.
func (d *Discovery) Invalidate(root string) {
	if d.cache == nil {
		return
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	prefix := root + "|"
	for _, k := range d.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			d.cache.Remove(k)
		}
	}
}

// Purge drops every cached result.
func (d *Discovery) Purge() {
	if d.cache != nil {
		d.cache.Purge()
	}
}

// Discover finds definitions below opts.Root. Per-file parse failures are
// reported in Result.Errors; the returned error is set only when the tree
// cannot be walked or ctx ends.
func (d *Discovery) Discover(ctx context.Context, opts Options) (*Result, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	opts.Root = root

	key := opts.cacheKey()
	if d.cache != nil {
		if res, ok := d.cache.Get(key); ok {
			return res, nil
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	files, err := d.findFiles(opts, d.sourcesFor(opts.Sources))
	if err != nil {
		return nil, fmt.Errorf("find files: %w", err)
	}

	res := newResult()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defs, err := f.source.Discover(gctx, f.path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.log.Warn("cannot parse task file", "source", f.source.Name(), "file", f.path, "error", err)
				res.Errors = append(res.Errors, &SourceError{Source: f.source.Name(), File: f.path, Err: err})
				return nil
			}
			for _, def := range defs {
				d.normalize(root, f, def)
				res.add(def)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(res.Definitions, func(i, j int) bool {
		return res.Definitions[i].ID < res.Definitions[j].ID
	})
	sort.Slice(res.Errors, func(i, j int) bool {
		return res.Errors[i].File < res.Errors[j].File
	})
	res.Duration = time.Since(start)
	res.Timestamp = time.Now()

	d.log.Debug("discovery finished", "root", root, "files", len(files),
		"definitions", len(res.Definitions), "errors", len(res.Errors), "took", res.Duration)

	if d.cache != nil {
		d.cache.Add(key, res)
	}
	return res, nil
}

func (d *Discovery) normalize(root string, f matchedFile, def *Definition) {
	def.Source = f.source.Name()
	if def.SourceFile == "" {
		def.SourceFile = f.path
	}
	if def.Cwd == "" {
		def.Cwd = filepath.Dir(f.path)
	}
	if def.Kind == "" {
		def.Kind = process.KindShell
	}
	if def.Group == "" {
		def.Group = InferGroup(def.Name)
	}
	if def.ID == "" {
		def.ID = definitionID(root, def.Source, def.SourceFile, def.Name)
	}
}

func (d *Discovery) sourcesFor(names []string) []Source {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Source
	if len(names) == 0 {
		for _, s := range d.sources {
			out = append(out, s)
		}
	} else {
		for _, name := range names {
			if s, ok := d.sources[name]; ok {
				out = append(out, s)
			}
		}
	}
	// Highest priority first so the first match claims the file.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

type matchedFile struct {
	path   string
	source Source
}

func (d *Discovery) findFiles(opts Options, sources []Source) ([]matchedFile, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	var files []matchedFile
	err := walkDir(opts.Root, opts.MaxDepth, opts.ExcludeDirs, func(path string) {
		rel, err := filepath.Rel(opts.Root, path)
		if err != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		base := filepath.Base(path)
		for _, s := range sources {
			if matchesAny(s.Patterns(), rel, base) {
				files = append(files, matchedFile{path: path, source: s})
				return
			}
		}
	})
	return files, err
}

func matchesAny(patterns []string, rel, base string) bool {
	for _, p := range patterns {
		name := base
		if strings.Contains(p, "/") {
			name = rel
		}
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func excluded(patterns []string, name string) bool {
	return slices.ContainsFunc(patterns, func(p string) bool {
		ok, err := doublestar.Match(p, name)
		return err == nil && ok
	})
}

// walkDir calls fn for every regular file under root down to maxDepth,
// following directory symlinks once.
func walkDir(root string, maxDepth int, exclude []string, fn func(path string)) error {
	visited := make(map[string]bool)
	resolved, err := filepath.EvalSymlinks(filepath.Clean(root))
	if err != nil {
		resolved = filepath.Clean(root)
	}
	visited[resolved] = true
	return walkLevel(root, 0, maxDepth, exclude, visited, fn)
}

func walkLevel(dir string, depth, maxDepth int, exclude []string, visited map[string]bool, fn func(string)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			if info.Mode().IsRegular() {
				fn(path)
			}
			continue
		}
		if depth >= maxDepth || excluded(exclude, e.Name()) {
			continue
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil || visited[resolved] {
			continue
		}
		visited[resolved] = true
		if err := walkLevel(path, depth+1, maxDepth, exclude, visited, fn); err != nil {
			return err
		}
	}
	return nil
}

func definitionID(root, source, file, name string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		h := sha256.Sum256([]byte(file))
		rel = hex.EncodeToString(h[:8])
	}
	return fmt.Sprintf("%s:%s:%s", source, filepath.ToSlash(rel), name)
}

var groupPatterns = []struct {
	group    Group
	patterns []string
}{
	{GroupBuild, []string{"build", "compile", "package", "bundle", "webpack", "rollup", "esbuild"}},
	{GroupTest, []string{"test", "spec", "check", "verify", "coverage"}},
	{GroupRun, []string{"run", "start", "serve", "dev", "watch"}},
	{GroupClean, []string{"clean", "clear", "purge", "reset"}},
	{GroupLint, []string{"lint", "format", "fmt", "prettier", "eslint", "golangci"}},
}

// InferGroup guesses a group from a task name.
func InferGroup(name string) Group {
	lower := strings.ToLower(name)
	for _, gp := range groupPatterns {
		for _, p := range gp.patterns {
			if strings.Contains(lower, p) {
				return gp.group
			}
		}
	}
	return GroupOther
}
