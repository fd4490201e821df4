package hook

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/projecttask"
)

// Standard priorities. Higher values run first.
const (
	PrioritySystem = 1000
	PriorityPlugin = 100
	PriorityUser   = 0
)

type entry struct {
	name     string
	priority int
	seq      uint64
	listener projecttask.Listener
}

// Manager holds listeners and observers in a deterministic order.
type Manager struct {
	mu        sync.RWMutex
	entries   []entry
	observers []projecttask.Observer
	seq       uint64
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add registers l at PriorityUser under a generated name and returns the name.
func (m *Manager) Add(l projecttask.Listener) string {
	return m.register("", PriorityUser, l)
}

// Register adds l under name. A listener already registered under name is
// replaced and takes the new priority.
func (m *Manager) Register(name string, priority int, l projecttask.Listener) {
	m.register(name, priority, l)
}

func (m *Manager) register(name string, priority int, l projecttask.Listener) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	if name == "" {
		name = fmt.Sprintf("listener-%d", m.seq)
	}
	e := entry{name: name, priority: priority, seq: m.seq, listener: l}
	for i, existing := range m.entries {
		if existing.name == name {
			e.seq = existing.seq
			m.entries[i] = e
			m.sort()
			return name
		}
	}
	m.entries = append(m.entries, e)
	m.sort()
	return name
}

// Unregister removes the listener registered under name.
func (m *Manager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.name == name {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// AddObserver registers an observer. Observers are notified in
// registration order.
func (m *Manager) AddObserver(o projecttask.Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Listeners returns the listeners in execution order.
func (m *Manager) Listeners() []projecttask.Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]projecttask.Listener, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.listener
	}
	return out
}

// Names returns the listener names in execution order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.name
	}
	return names
}

// Observers returns the registered observers.
func (m *Manager) Observers() []projecttask.Observer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]projecttask.Observer(nil), m.observers...)
}

// Len returns the number of listeners.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// sort orders entries by priority descending, then registration order.
func (m *Manager) sort() {
	sort.SliceStable(m.entries, func(i, j int) bool {
		if m.entries[i].priority != m.entries[j].priority {
			return m.entries[i].priority > m.entries[j].priority
		}
		return m.entries[i].seq < m.entries[j].seq
	})
}

// RunBefore calls BeforeRun on every listener of every manager in order and
// stops at the first error, which it returns. Panics become errors.
func RunBefore(tc *projecttask.TaskContext, managers ...*Manager) error {
	for _, m := range managers {
		if m == nil {
			continue
		}
		for _, l := range m.Listeners() {
			if err := callBefore(l, tc); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunAfter calls AfterRun on every listener of every manager in order. All
// listeners run; each failure is logged and the failures are returned
// joined.
func RunAfter(result *projecttask.Result, log logging.Logger, managers ...*Manager) error {
	if log == nil {
		log = logging.Nop()
	}
	var errs []error
	for _, m := range managers {
		if m == nil {
			continue
		}
		for _, l := range m.Listeners() {
			if err := callAfter(l, result); err != nil {
				log.Error("after-run listener failed", "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// NotifyStarted calls Started on every observer of every manager.
func NotifyStarted(tc *projecttask.TaskContext, log logging.Logger, managers ...*Manager) {
	for _, m := range managers {
		if m == nil {
			continue
		}
		for _, o := range m.Observers() {
			safeNotify(log, "started", func() { o.Started(tc) })
		}
	}
}

// NotifyFinished calls Finished on every observer of every manager.
func NotifyFinished(result *projecttask.Result, log logging.Logger, managers ...*Manager) {
	for _, m := range managers {
		if m == nil {
			continue
		}
		for _, o := range m.Observers() {
			safeNotify(log, "finished", func() { o.Finished(result) })
		}
	}
}

func callBefore(l projecttask.Listener, tc *projecttask.TaskContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("before-run", r)
		}
	}()
	return l.BeforeRun(tc)
}

func callAfter(l projecttask.Listener, result *projecttask.Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("after-run", r)
		}
	}()
	return l.AfterRun(result)
}

func safeNotify(log logging.Logger, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Error("observer panicked", "event", event, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func panicError(stage string, r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%s listener panicked: %w", stage, err)
	}
	return fmt.Errorf("%s listener panicked: %v", stage, r)
}
