package projecttask

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// TaskContext carries cross-cutting data for one run. It is created per
// run and shared by every listener and runner of that run.
//
// The exported fields are set before the run starts and must be treated as
// read-only afterwards. The extension data slot, the generated-files
// collector and the dirty-output providers are safe for concurrent use.
type TaskContext struct {
	// SessionID identifies the run.
	SessionID string

	// AutoRun is true when the run was triggered automatically, e.g. by a
	// file watcher, rather than by an explicit request.
	AutoRun bool

	// RunConfiguration names the run configuration the run serves, if any.
	RunConfiguration string

	// CollectGeneratedFiles enables FileGenerated bookkeeping.
	CollectGeneratedFiles bool

	data sync.Map

	genMu     sync.Mutex
	generated map[string][]string

	dirtyMu        sync.Mutex
	dirtyProviders []func() []string

	requested []Task
	index     map[TaskID]Task
}

// ContextOption configures a TaskContext.
type ContextOption func(*TaskContext)

// WithSessionID sets an explicit session ID.
func WithSessionID(id string) ContextOption {
	return func(c *TaskContext) {
		if id != "" {
			c.SessionID = id
		}
	}
}

// WithAutoRun marks the run as automatically triggered.
func WithAutoRun(auto bool) ContextOption {
	return func(c *TaskContext) {
		c.AutoRun = auto
	}
}

// WithRunConfiguration records the run configuration name.
func WithRunConfiguration(name string) ContextOption {
	return func(c *TaskContext) {
		c.RunConfiguration = name
	}
}

// WithGeneratedFilesCollection enables generated file collection.
func WithGeneratedFilesCollection() ContextOption {
	return func(c *TaskContext) {
		c.CollectGeneratedFiles = true
	}
}

// NewTaskContext creates a context with a fresh session ID.
func NewTaskContext(opts ...ContextOption) *TaskContext {
	c := &TaskContext{
		SessionID: uuid.NewString(),
		generated: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key is a typed key into the TaskContext extension data slot.
type Key[T any] struct {
	name string
}

// NewKey creates a key. Keys are compared by identity of their name and
// type, so two keys with the same name and type address the same slot.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// String returns the key name.
func (k Key[T]) String() string { return k.name }

// PutData stores v under key.
func PutData[T any](c *TaskContext, key Key[T], v T) {
	c.data.Store(key, v)
}

// GetData returns the value stored under key.
func GetData[T any](c *TaskContext, key Key[T]) (T, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// LoadOrStoreData returns the existing value for key if present; otherwise
// it stores v and returns it. loaded reports which happened.
func LoadOrStoreData[T any](c *TaskContext, key Key[T], v T) (actual T, loaded bool) {
	got, loaded := c.data.LoadOrStore(key, v)
	return got.(T), loaded
}

// DeleteData removes the value stored under key.
func DeleteData[T any](c *TaskContext, key Key[T]) {
	c.data.Delete(key)
}

// FileGenerated records that path was generated under output root. It is a
// no-op unless CollectGeneratedFiles is set.
func (c *TaskContext) FileGenerated(root, path string) {
	if !c.CollectGeneratedFiles {
		return
	}
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.generated == nil {
		c.generated = make(map[string][]string)
	}
	c.generated[root] = append(c.generated[root], path)
}

// GeneratedFiles returns a copy of the generated files grouped by root.
func (c *TaskContext) GeneratedFiles() map[string][]string {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	out := make(map[string][]string, len(c.generated))
	for root, paths := range c.generated {
		out[root] = append([]string(nil), paths...)
	}
	return out
}

// AddDirtyOutputPathsProvider registers a function reporting output paths
// that the run is about to change.
func (c *TaskContext) AddDirtyOutputPathsProvider(fn func() []string) {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	c.dirtyProviders = append(c.dirtyProviders, fn)
}

// DirtyOutputPaths collects the paths of all registered providers, sorted
// and deduplicated. It returns nil if no provider was registered.
func (c *TaskContext) DirtyOutputPaths() []string {
	c.dirtyMu.Lock()
	providers := append([]func() []string(nil), c.dirtyProviders...)
	c.dirtyMu.Unlock()

	if len(providers) == 0 {
		return nil
	}
	set := make(map[string]struct{})
	for _, p := range providers {
		for _, path := range p() {
			set[path] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for path := range set {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// SetRequested records the tasks requested for the run. The engine calls it
// once before dispatch; it stores the leaves reachable from root.
func (c *TaskContext) SetRequested(root ...Task) {
	leaves := Leaves(root...)
	index := make(map[TaskID]Task, len(leaves))
	for _, t := range leaves {
		index[t.ID()] = t
	}
	c.requested = leaves
	c.index = index
}

// Tasks returns the requested leaf tasks.
func (c *TaskContext) Tasks() []Task {
	return append([]Task(nil), c.requested...)
}

// HasTask reports whether a task with id was requested.
func (c *TaskContext) HasTask(id TaskID) bool {
	_, ok := c.index[id]
	return ok
}

// Task returns the requested task with id.
func (c *TaskContext) Task(id TaskID) (Task, bool) {
	t, ok := c.index[id]
	return t, ok
}

// EnumerateTasks calls fn for every requested task until fn returns false.
func (c *TaskContext) EnumerateTasks(fn func(Task) bool) {
	for _, t := range c.requested {
		if !fn(t) {
			return
		}
	}
}
