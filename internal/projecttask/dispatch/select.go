package dispatch

import (
	"context"
	"fmt"

	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/projecttask"
)

// Batch is a group of tasks claimed by one runner.
type Batch struct {
	Runner projecttask.Runner
	Tasks  []projecttask.Task
}

// SelectRunners partitions tasks among the runners of reg.
//
// Runners are probed in registration order and the first that can run a
// task claims it. A probe that fails or panics is logged and counts as
// "cannot run". A cancellation error from a probe, or a done ctx, stops
// the selection and is returned. Tasks nobody claims are grouped under
// Dummy. Batches appear in the order their runner first claimed a task.
func SelectRunners(ctx context.Context, reg *Registry, tasks []projecttask.Task, tc *projecttask.TaskContext, log logging.Logger) ([]Batch, error) {
	if log == nil {
		log = logging.Nop()
	}
	var runners []projecttask.Runner
	if reg != nil {
		runners = reg.Runners()
	}

	index := make(map[string]int)
	var batches []Batch

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", projecttask.ErrCanceled, err)
		}

		claimed := Dummy
		for _, runner := range runners {
			ok, err := probe(runner, tc, task)
			if err != nil {
				if projecttask.IsCanceled(err) {
					return nil, err
				}
				log.Error("runner probe failed",
					"runner", runner.Name(), "task", task.ID(), "error", err)
				continue
			}
			if ok {
				claimed = runner
				break
			}
		}

		i, seen := index[claimed.Name()]
		if !seen {
			i = len(batches)
			index[claimed.Name()] = i
			batches = append(batches, Batch{Runner: claimed})
		}
		batches[i].Tasks = append(batches[i].Tasks, task)
	}

	return batches, nil
}

// probe calls CanRun, turning a panic into an error.
func probe(runner projecttask.Runner, tc *projecttask.TaskContext, task projecttask.Task) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, isErr := r.(error); isErr && projecttask.IsCanceled(e) {
				err = e
				return
			}
			err = fmt.Errorf("runner %s panicked: %v", runner.Name(), r)
		}
	}()
	return runner.CanRun(tc, task)
}
