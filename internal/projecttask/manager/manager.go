package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/projecttask/dispatch"
	"github.com/dshills/projecttask/internal/projecttask/hook"
	"github.com/dshills/projecttask/internal/promise"
	"github.com/dshills/projecttask/internal/uiloop"
	"github.com/dshills/projecttask/internal/workpool"
)

// DefaultPollInterval is the interval WaitFor polls a pending run with.
const DefaultPollInterval = 10 * time.Millisecond

// ModuleSource lists the modules of the project.
type ModuleSource func() []string

// Manager runs task graphs against a runner registry.
type Manager struct {
	registry   *dispatch.Registry
	listeners  *hook.Manager
	extensions *hook.Manager
	modules    ModuleSource

	pool     *workpool.Pool
	ownsPool bool

	pollInterval time.Duration
	log          logging.Logger
	stats        counters

	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithPool runs background work on p instead of a pool owned by the
// manager. The caller starts and stops p.
func WithPool(p *workpool.Pool) Option {
	return func(m *Manager) {
		if p != nil {
			m.pool = p
		}
	}
}

// WithExtensions adds a second group of listeners that runs after the
// manager's own listeners.
func WithExtensions(h *hook.Manager) Option {
	return func(m *Manager) {
		m.extensions = h
	}
}

// WithPollInterval sets the interval WaitFor polls with.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithModules sets the module source used by BuildAll and RebuildAll.
func WithModules(src ModuleSource) Option {
	return func(m *Manager) {
		m.modules = src
	}
}

// New creates a Manager dispatching to the runners of registry. A nil
// registry sends every task to the dummy runner.
func New(registry *dispatch.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry:     registry,
		listeners:    hook.NewManager(),
		pollInterval: DefaultPollInterval,
		log:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry, _ = dispatch.NewRegistry()
	}
	m.log = logging.WithComponent(m.log, "task-manager")
	if m.pool == nil {
		m.pool = workpool.New(workpool.WithLogger(m.log))
		_ = m.pool.Start()
		m.ownsPool = true
	}
	return m
}

// Close stops the manager's own pool. Pending runs are not canceled.
func (m *Manager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		if m.ownsPool {
			err = m.pool.Stop(ctx)
			if errors.Is(err, workpool.ErrNotRunning) {
				err = nil
			}
		}
	})
	return err
}

// Registry returns the runner registry.
func (m *Manager) Registry() *dispatch.Registry {
	return m.registry
}

// AddListener registers l with the default priority and returns its name.
func (m *Manager) AddListener(l projecttask.Listener) string {
	return m.listeners.Add(l)
}

// RegisterListener registers l under name with the given priority.
// Higher priorities run first.
func (m *Manager) RegisterListener(name string, priority int, l projecttask.Listener) {
	m.listeners.Register(name, priority, l)
}

// RemoveListener removes the listener registered under name.
func (m *Manager) RemoveListener(name string) bool {
	return m.listeners.Unregister(name)
}

// AddObserver registers o for run start and finish notifications.
func (m *Manager) AddObserver(o projecttask.Observer) {
	m.listeners.AddObserver(o)
}

// Stats returns a snapshot of the run counters.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot()
}

// Run executes the graph rooted at task and returns a promise resolved
// with the run result. A nil tc gets a fresh TaskContext. The promise is
// never rejected.
func (m *Manager) Run(ctx context.Context, tc *projecttask.TaskContext, task projecttask.Task) *promise.Promise[*projecttask.Result] {
	if tc == nil {
		tc = projecttask.NewTaskContext()
	}
	out := promise.New[*projecttask.Result]()

	if uiloop.IsInteractive(ctx) {
		detached := uiloop.Detach(ctx)
		m.pool.Go(context.WithoutCancel(detached), func(context.Context) {
			m.start(detached, tc, task, out)
		})
		return out
	}
	m.start(ctx, tc, task, out)
	return out
}

// start runs the listener chain, visits the graph and dispatches the
// first wave.
func (m *Manager) start(ctx context.Context, tc *projecttask.TaskContext, task projecttask.Task, out *promise.Promise[*projecttask.Result]) {
	m.stats.runs.Add(1)

	var roots []projecttask.Task
	if task != nil {
		roots = []projecttask.Task{task}
	}
	tc.SetRequested(roots...)

	log := m.log.With("session", tc.SessionID)
	r := &run{
		m:       m,
		ctx:     ctx,
		tc:      tc,
		log:     log,
		out:     out,
		agg:     &aggregator{},
		started: time.Now(),
	}

	hook.NotifyStarted(tc, log, m.listeners, m.extensions)

	if err := hook.RunBefore(tc, m.listeners, m.extensions); err != nil {
		m.stats.vetoed.Add(1)
		logVeto(log, err)
		r.agg.abort()
		r.finish(r.agg.result(tc))
		return
	}

	waves, err := projecttask.Waves(roots...)
	if err != nil {
		log.Error("cannot order tasks", "error", err)
		r.agg.fail()
		r.finish(r.agg.result(tc))
		return
	}
	log.Debug("task run started", "waves", len(waves))

	r.waves = waves
	r.advance()
}

func logVeto(log logging.Logger, err error) {
	var execErr *projecttask.ExecutionError
	if errors.As(err, &execErr) || projecttask.IsCanceled(err) {
		log.Info("task run vetoed", "reason", err)
		return
	}
	log.Error("before-run listener failed", "error", err)
}
