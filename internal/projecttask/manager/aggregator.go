package manager

import (
	"sync"
	"sync/atomic"

	"github.com/dshills/projecttask/internal/projecttask"
)

// aggregator merges batch results that complete concurrently.
type aggregator struct {
	states    sync.Map // projecttask.TaskID -> projecttask.TaskState
	aborted   atomic.Bool
	hasErrors atomic.Bool
}

// record classifies every task of a finished batch and folds the batch
// flags into the run flags.
func (a *aggregator) record(tasks []projecttask.Task, res *projecttask.Result) {
	state := projecttask.StateFor(res.Aborted, res.HasErrors)
	for _, t := range tasks {
		a.states.Store(t.ID(), state)
	}
	if res.Aborted {
		a.aborted.Store(true)
	}
	if res.HasErrors {
		a.hasErrors.Store(true)
	}
}

func (a *aggregator) abort() {
	a.aborted.Store(true)
}

func (a *aggregator) fail() {
	a.hasErrors.Store(true)
}

// result builds the whole-run result from what has been recorded so far.
func (a *aggregator) result(tc *projecttask.TaskContext) *projecttask.Result {
	states := make(map[projecttask.TaskID]projecttask.TaskState)
	a.states.Range(func(k, v any) bool {
		states[k.(projecttask.TaskID)] = v.(projecttask.TaskState)
		return true
	})
	return &projecttask.Result{
		Aborted:   a.aborted.Load(),
		HasErrors: a.hasErrors.Load(),
		States:    states,
		Context:   tc,
	}
}

// countdown fires done once after n calls to tick.
type countdown struct {
	remaining atomic.Int64
	done      func()
}

func newCountdown(n int, done func()) *countdown {
	c := &countdown{done: done}
	c.remaining.Store(int64(n))
	return c
}

func (c *countdown) tick() {
	if c.remaining.Add(-1) == 0 {
		c.done()
	}
}
