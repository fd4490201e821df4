package watch

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/promise"
)

// Engine runs task graphs. *manager.Manager implements it.
type Engine interface {
	Run(ctx context.Context, tc *projecttask.TaskContext, task projecttask.Task) *promise.Promise[*projecttask.Result]
	WaitFor(ctx context.Context, p *promise.Promise[*projecttask.Result]) (*projecttask.Result, error)
}

// BuildFunc returns the task to run for a batch of changes. Returning a
// nil task skips the batch.
type BuildFunc func(ctx context.Context, events []Event) (projecttask.Task, error)

// ResultFunc observes the outcome of each triggered run.
type ResultFunc func(events []Event, res *projecttask.Result, err error)

// AutoRun returns a Handler that runs the task from build for every
// batch with TaskContext.AutoRun set and waits for it. Files reported as
// generated by a run are added to w's ignore list so they do not trigger
// the next one.
func AutoRun(w *Watcher, e Engine, build BuildFunc, report ResultFunc, opts ...projecttask.ContextOption) Handler {
	log := w.log
	return func(ctx context.Context, events []Event) {
		task, err := build(ctx, events)
		if err != nil || task == nil {
			if err != nil {
				log.Error("cannot build task for changes", "error", err)
			}
			if report != nil {
				report(events, nil, err)
			}
			return
		}

		tc := projecttask.NewTaskContext(slices.Concat(
			[]projecttask.ContextOption{projecttask.WithGeneratedFilesCollection()},
			opts,
			[]projecttask.ContextOption{projecttask.WithAutoRun(true)},
		)...)
		log.Info("files changed, running tasks", "changes", len(events), "task", task.Name(), "session", tc.SessionID)

		res, err := e.WaitFor(ctx, e.Run(ctx, tc, task))
		w.ignoreGenerated(tc)
		if report != nil {
			report(events, res, err)
		}
	}
}

func (w *Watcher) ignoreGenerated(tc *projecttask.TaskContext) {
	known := w.ignore.Patterns()
	for root, paths := range tc.GeneratedFiles() {
		for _, p := range paths {
			if !filepath.IsAbs(p) {
				p = filepath.Join(root, p)
			}
			rel, err := filepath.Rel(w.root, p)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			pattern := "/" + filepath.ToSlash(rel)
			if slices.Contains(known, pattern) {
				continue
			}
			if err := w.ignore.Add(pattern); err == nil {
				known = append(known, pattern)
				w.log.Debug("ignoring generated file", "path", rel)
			}
		}
	}
}
