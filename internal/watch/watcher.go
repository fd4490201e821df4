// Package watch triggers task runs when files in a project change.
//
// A Watcher follows a directory tree with fsnotify, drops ignored paths,
// coalesces changes until the tree has been quiet for the debounce delay
// and hands each batch to a Handler. Batches never overlap: changes that
// arrive while a handler runs are delivered in the next batch.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/projecttask/internal/logging"
)

var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrNotDirectory  = errors.New("watch root is not a directory")
)

// Op is a set of file system operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
)

func (op Op) String() string {
	names := []struct {
		op   Op
		name string
	}{{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"}, {OpRename, "RENAME"}}
	var parts []string
	for _, n := range names {
		if op.Has(n.op) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a change to one path. Ops seen for the same path during one
// quiet period are merged.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Handler receives a batch of events, sorted by path.
type Handler func(ctx context.Context, events []Event)

// Stats counts watcher activity.
type Stats struct {
	WatchedDirs int
	Events      int64
	Batches     int64
	Errors      int64
}

// Config configures a Watcher.
type Config struct {
	// Debounce is the quiet period that closes a batch.
	Debounce time.Duration

	// IgnorePatterns are gitignore-style patterns relative to the root.
	IgnorePatterns []string

	// UseGitignore also loads <root>/.gitignore.
	UseGitignore bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:       300 * time.Millisecond,
		IgnorePatterns: DefaultIgnorePatterns,
		UseGitignore:   true,
	}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Watcher) { w.log = logging.WithComponent(l, "watch") }
}

// Watcher watches one directory tree.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   *Ignore
	fsw      *fsnotify.Watcher
	log      logging.Logger

	mu      sync.Mutex
	dirs    map[string]bool
	closed  bool
	running atomic.Bool

	events  atomic.Int64
	batches atomic.Int64
	errors  atomic.Int64
}

// New creates a watcher for root and registers every directory below it
// that is not ignored.
func New(root string, cfg Config, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}

	ignore := NewIgnore(cfg.IgnorePatterns...)
	if cfg.UseGitignore {
		if err := ignore.AddFile(filepath.Join(abs, ".gitignore")); err != nil {
			return nil, err
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     abs,
		debounce: cfg.Debounce,
		ignore:   ignore,
		fsw:      fsw,
		log:      logging.WithComponent(nil, "watch"),
		dirs:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watch root.
func (w *Watcher) Root() string { return w.root }

// Ignore returns the matcher so callers can add patterns, e.g. for
// files their own runs generate.
func (w *Watcher) Ignore() *Ignore { return w.ignore }

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	dirs := len(w.dirs)
	w.mu.Unlock()
	return Stats{
		WatchedDirs: dirs,
		Events:      w.events.Load(),
		Batches:     w.batches.Load(),
		Errors:      w.errors.Load(),
	}
}

// Close stops the watcher. Run returns once its current handler finishes.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.fsw.Close()
}

// Run delivers batches to h until ctx ends or the watcher is closed.
// It may be called once.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("watcher already running")
	}
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWatcherClosed
	}

	var (
		pending = make(map[string]*Event)
		timer   = time.NewTimer(w.debounce)
		busy    bool
		due     bool
		done    = make(chan struct{})
		errs    = w.fsw.Errors
	)
	timer.Stop()
	defer timer.Stop()

	deliver := func() {
		batch := make([]Event, 0, len(pending))
		for _, ev := range pending {
			batch = append(batch, *ev)
		}
		clear(pending)
		sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
		w.batches.Add(1)
		busy, due = true, false
		go func() {
			defer func() { done <- struct{}{} }()
			h(ctx, batch)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if busy {
				<-done
			}
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				if busy {
					<-done
				}
				return nil
			}
			if e, keep := w.convert(ev); keep {
				w.events.Add(1)
				if p, ok := pending[e.Path]; ok {
					p.Op |= e.Op
					p.Timestamp = e.Timestamp
				} else {
					pending[e.Path] = &e
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.errors.Add(1)
			w.log.Warn("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			if busy {
				due = true
				continue
			}
			deliver()

		case <-done:
			busy = false
			if due && len(pending) > 0 {
				deliver()
			}
		}
	}
}

// convert filters an fsnotify event and registers new directories.
func (w *Watcher) convert(ev fsnotify.Event) (Event, bool) {
	var op Op
	if ev.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if ev.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if ev.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if ev.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if op == 0 {
		// chmod only
		return Event{}, false
	}

	isDir := false
	if op.Has(OpCreate) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.ignored(ev.Name, isDir) {
		return Event{}, false
	}
	if isDir {
		if err := w.addTree(ev.Name); err != nil {
			w.log.Debug("cannot watch new directory", "dir", ev.Name, "error", err)
		}
	}
	if op.Has(OpRemove) || op.Has(OpRename) {
		w.forget(ev.Name)
	}
	return Event{Path: ev.Name, Op: op, Timestamp: time.Now()}, true
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return w.ignore.Match(filepath.ToSlash(rel), isDir)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path, true) {
			return filepath.SkipDir
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed {
			return ErrWatcherClosed
		}
		if w.dirs[path] {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.errors.Add(1)
			w.log.Warn("cannot watch directory", "dir", path, "error", err)
			return nil
		}
		w.dirs[path] = true
		return nil
	})
}

// forget drops a removed directory and its children from the watch set.
// fsnotify removes the underlying watches itself.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.dirs, dir)
		}
	}
}
