package dispatch

import (
	"context"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/promise"
)

// DummyRunnerName is the name of the fallback runner.
const DummyRunnerName = "dummy"

// DummyRunner takes the tasks no registered runner claims and completes
// them successfully without side effects.
type DummyRunner struct{}

// Dummy is the shared fallback runner instance.
var Dummy projecttask.Runner = DummyRunner{}

// Name implements projecttask.Runner.
func (DummyRunner) Name() string { return DummyRunnerName }

// CanRun implements projecttask.Runner.
func (DummyRunner) CanRun(*projecttask.TaskContext, projecttask.Task) (bool, error) {
	return true, nil
}

// Run implements projecttask.Runner.
func (DummyRunner) Run(context.Context, *projecttask.TaskContext, []projecttask.Task) *promise.Promise[*projecttask.Result] {
	return promise.Resolved(projecttask.SuccessResult())
}
