package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dshills/projecttask/internal/config"
	"github.com/dshills/projecttask/internal/discovery"
	"github.com/dshills/projecttask/internal/discovery/sources"
	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/projecttask/dispatch"
	"github.com/dshills/projecttask/internal/projecttask/manager"
	"github.com/dshills/projecttask/internal/promise"
	"github.com/dshills/projecttask/internal/runners/process"
	"github.com/dshills/projecttask/internal/runners/script"
	"github.com/dshills/projecttask/internal/uiloop"
	"github.com/dshills/projecttask/internal/workpool"
)

const shutdownTimeout = 5 * time.Second

// app holds the wired components shared by every subcommand.
type app struct {
	root string
	cfg  *config.Config
	log  logging.Logger
	out  io.Writer

	pool      *workpool.Pool
	loop      *uiloop.Loop
	stopLoop  context.CancelFunc
	runner    *process.Runner
	scripts   []*script.Runner
	manager   *manager.Manager
	discovery *discovery.Discovery
}

func newApp(flags *globalFlags, out io.Writer) (*app, error) {
	root, err := filepath.Abs(flags.dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}

	cfg, err := config.Load(config.Options{ProjectDir: root, File: flags.configFile})
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	log := logging.New(cfg.LoggerConfig())
	a := &app{root: root, cfg: cfg, log: log, out: out}

	a.pool = workpool.New(
		workpool.WithWorkerCount(cfg.Engine.Workers),
		workpool.WithQueueSize(cfg.Engine.QueueSize),
		workpool.WithLogger(log),
	)
	if err := a.pool.Start(); err != nil {
		return nil, fmt.Errorf("start worker pool: %w", err)
	}

	loopCtx, stop := context.WithCancel(context.Background())
	a.loop = uiloop.New(cfg.Engine.QueueSize)
	a.stopLoop = stop
	go a.loop.Run(loopCtx)

	if err := a.registerRunners(flags.scripts); err != nil {
		a.close()
		return nil, err
	}

	a.discovery = discovery.New(sources.All(),
		discovery.WithLogger(log),
		discovery.WithCache(cfg.Discovery.CacheSize, time.Duration(cfg.Discovery.CacheTTL)),
		discovery.WithConcurrency(cfg.Engine.Workers),
	)
	return a, nil
}

// registerRunners builds the registry. Scripts come first so they can
// claim tasks before the process runner does.
func (a *app) registerRunners(scripts []string) error {
	runners := make([]projecttask.Runner, 0, len(scripts)+1)
	for _, path := range scripts {
		r, err := script.Load(path, script.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.scripts = append(a.scripts, r)
		runners = append(runners, r)
	}

	runner, err := process.NewRunner(a.cfg.ProcessRunnerConfig(a.root), process.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("create process runner: %w", err)
	}
	a.runner = runner
	runners = append(runners, runner)

	registry, err := dispatch.NewRegistry(runners...)
	if err != nil {
		return err
	}
	a.manager = manager.New(registry,
		manager.WithLogger(a.log),
		manager.WithPool(a.pool),
		manager.WithPollInterval(time.Duration(a.cfg.Engine.PollInterval)),
	)
	return nil
}

// launch calls start on the interactive loop. The manager sees an
// interactive caller and moves the run onto the worker pool, so the loop
// is free again as soon as start returns.
func (a *app) launch(ctx context.Context, start launchFunc) pending {
	started := make(chan pending, 1)
	if err := a.loop.Invoke(ctx, func(ctx context.Context) { started <- start(ctx) }); err != nil {
		return promise.Rejected[*projecttask.Result](err)
	}
	return <-started
}

// Run implements watch.Engine by starting runs through launch.
func (a *app) Run(ctx context.Context, tc *projecttask.TaskContext, task projecttask.Task) pending {
	return a.launch(ctx, func(ctx context.Context) pending { return a.manager.Run(ctx, tc, task) })
}

// WaitFor implements watch.Engine.
func (a *app) WaitFor(ctx context.Context, p pending) (*projecttask.Result, error) {
	return a.manager.WaitFor(ctx, p)
}

// discover scans the project and builds the task graph.
func (a *app) discover(ctx context.Context) (*discovery.Result, *discovery.Graph, error) {
	res, err := a.discovery.Discover(ctx, a.cfg.DiscoveryOptions(a.root))
	if err != nil {
		return nil, nil, err
	}
	for _, se := range res.Errors {
		a.log.Warn("skipped task file", "source", se.Source, "file", se.File, "error", se.Err)
	}
	graph := discovery.NewGraph(res.Definitions)
	for _, m := range graph.Missing {
		a.log.Warn("unknown dependency", "task", m.Task, "dependency", m.Name)
	}
	return res, graph, nil
}

// print writes to the output from the interactive loop so that lines
// from concurrent commands never interleave.
func (a *app) print(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	write := func(context.Context) { _, _ = io.WriteString(a.out, line) }

	err := a.loop.Post(context.Background(), write)
	if errors.Is(err, uiloop.ErrQueueFull) {
		err = a.loop.Invoke(context.Background(), write)
	}
	if err != nil {
		write(context.Background())
	}
}

// flush waits until every posted line has been written.
func (a *app) flush() {
	_ = a.loop.Invoke(context.Background(), func(context.Context) {})
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.manager != nil {
		if err := a.manager.Close(ctx); err != nil {
			a.log.Warn("manager shutdown", "error", err)
		}
	}
	for _, s := range a.scripts {
		s.Close()
	}
	if err := a.pool.Stop(ctx); err != nil {
		a.log.Warn("worker pool shutdown", "error", err)
	}
	a.flush()
	a.loop.Close()
	a.stopLoop()
}
