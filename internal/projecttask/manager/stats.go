package manager

import "sync/atomic"

// Stats contains run counters of a Manager.
type Stats struct {
	// Runs is the number of runs started.
	Runs uint64
	// Vetoed is the number of runs stopped by a before-run listener.
	Vetoed uint64
	// Aborted is the number of runs that resolved with Aborted.
	Aborted uint64
	// Failed is the number of runs that resolved with HasErrors.
	Failed uint64
	// Batches is the number of (runner, batch) pairs dispatched.
	Batches uint64
	// Tasks is the number of tasks dispatched.
	Tasks uint64
}

type counters struct {
	runs    atomic.Uint64
	vetoed  atomic.Uint64
	aborted atomic.Uint64
	failed  atomic.Uint64
	batches atomic.Uint64
	tasks   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Runs:    c.runs.Load(),
		Vetoed:  c.vetoed.Load(),
		Aborted: c.aborted.Load(),
		Failed:  c.failed.Load(),
		Batches: c.batches.Load(),
		Tasks:   c.tasks.Load(),
	}
}
