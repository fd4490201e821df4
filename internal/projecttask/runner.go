package projecttask

import (
	"context"

	"github.com/dshills/projecttask/internal/promise"
)

// Runner executes the tasks it recognizes. Runners are registered once
// and shared by every run.
type Runner interface {
	// Name returns a unique identifier for the runner.
	Name() string

	// CanRun reports whether the runner handles task. Returning an error
	// marks the runner as non-matching for the task, except for
	// cancellation errors which abort the dispatch.
	CanRun(tc *TaskContext, task Task) (bool, error)

	// Run executes a batch of tasks it claimed and returns a promise of
	// the batch result. A rejected promise counts as a failed batch.
	Run(ctx context.Context, tc *TaskContext, tasks []Task) *promise.Promise[*Result]
}

// RunnerFuncs adapts plain functions to the Runner interface.
type RunnerFuncs struct {
	RunnerName string
	CanRunFn   func(tc *TaskContext, task Task) (bool, error)
	RunFn      func(ctx context.Context, tc *TaskContext, tasks []Task) *promise.Promise[*Result]
}

// Name implements Runner.
func (r *RunnerFuncs) Name() string { return r.RunnerName }

// CanRun implements Runner.
func (r *RunnerFuncs) CanRun(tc *TaskContext, task Task) (bool, error) {
	if r.CanRunFn == nil {
		return false, nil
	}
	return r.CanRunFn(tc, task)
}

// Run implements Runner.
func (r *RunnerFuncs) Run(ctx context.Context, tc *TaskContext, tasks []Task) *promise.Promise[*Result] {
	if r.RunFn == nil {
		return promise.Resolved(SuccessResult())
	}
	return r.RunFn(ctx, tc, tasks)
}
