package projecttask

import "sort"

// TaskState is the terminal state of one dispatched task.
type TaskState string

const (
	// TaskSkipped means the batch holding the task was aborted.
	TaskSkipped TaskState = "skipped"
	// TaskFailed means the batch holding the task reported errors.
	TaskFailed TaskState = "failed"
	// TaskSucceeded means the batch holding the task completed cleanly.
	TaskSucceeded TaskState = "succeeded"
)

// StateFor classifies a task of a batch that finished with the given flags.
func StateFor(aborted, hasErrors bool) TaskState {
	switch {
	case aborted:
		return TaskSkipped
	case hasErrors:
		return TaskFailed
	default:
		return TaskSucceeded
	}
}

// Result is the terminal outcome of a batch or of a whole run.
// Batch results returned by runners only need the two flags.
type Result struct {
	// Aborted reports that the batch or run was canceled or vetoed.
	Aborted bool

	// HasErrors reports that at least one task failed.
	HasErrors bool

	// States maps every dispatched task to its terminal state. It is set
	// on whole-run results only.
	States map[TaskID]TaskState

	// Context is the run context that produced a whole-run result.
	Context *TaskContext
}

// SuccessResult returns a clean batch result.
func SuccessResult() *Result {
	return &Result{}
}

// ErrorResult returns a batch result with errors.
func ErrorResult() *Result {
	return &Result{HasErrors: true}
}

// AbortedResult returns an aborted batch result.
func AbortedResult() *Result {
	return &Result{Aborted: true}
}

// Succeeded reports whether the result is neither aborted nor failed.
func (r *Result) Succeeded() bool {
	return !r.Aborted && !r.HasErrors
}

// State returns the state recorded for id.
func (r *Result) State(id TaskID) (TaskState, bool) {
	s, ok := r.States[id]
	return s, ok
}

// AnyTaskMatches reports whether some task state satisfies pred.
func (r *Result) AnyTaskMatches(pred func(TaskID, TaskState) bool) bool {
	for id, s := range r.States {
		if pred(id, s) {
			return true
		}
	}
	return false
}

// TaskIDs returns the IDs of all recorded tasks, sorted.
func (r *Result) TaskIDs() []TaskID {
	ids := make([]TaskID, 0, len(r.States))
	for id := range r.States {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WithErrors returns a copy of r with HasErrors set.
func (r *Result) WithErrors() *Result {
	cp := *r
	cp.HasErrors = true
	if r.States != nil {
		cp.States = make(map[TaskID]TaskState, len(r.States))
		for id, s := range r.States {
			cp.States[id] = s
		}
	}
	return &cp
}
