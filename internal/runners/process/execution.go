package process

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/projecttask/internal/projecttask"
)

// State of an execution.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Execution records one task's command run, retries included.
type Execution struct {
	ID      string
	TaskID  projecttask.TaskID
	Command string
	Dir     string

	mu       sync.RWMutex
	state    State
	exitCode int
	err      error
	attempts int
	problems []Problem
	started  time.Time
	ended    time.Time
	output   *Output
	outputs  []string
}

func newExecution(id projecttask.TaskID, output *Output) *Execution {
	return &Execution{
		ID:       uuid.NewString(),
		TaskID:   id,
		state:    StatePending,
		exitCode: -1,
		output:   output,
	}
}

// State returns the current state.
func (e *Execution) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// ExitCode returns the exit code of the last attempt, -1 if none finished.
func (e *Execution) ExitCode() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.exitCode
}

// Err returns the failure cause.
func (e *Execution) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Attempts returns how many times the command was started.
func (e *Execution) Attempts() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attempts
}

// Problems returns the problems matched in the output.
func (e *Execution) Problems() []Problem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Problem(nil), e.problems...)
}

// HasErrorProblems reports whether an error-severity problem was matched.
func (e *Execution) HasErrorProblems() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Output returns the captured output.
func (e *Execution) Output() *Output {
	return e.output
}

// Duration returns the wall time of the execution so far.
func (e *Execution) Duration() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.started.IsZero() {
		return 0
	}
	end := e.ended
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(e.started)
}

func (e *Execution) begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts++
	if e.started.IsZero() {
		e.started = time.Now()
	}
	// Only the last attempt is judged.
	e.problems = nil
	e.exitCode = -1
	e.state = StateRunning
}

func (e *Execution) addProblem(p Problem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.problems = append(e.problems, p)
}

func (e *Execution) setExitCode(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exitCode = code
}

func (e *Execution) finish(state State, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	e.err = err
	e.ended = time.Now()
}

// Report collects the executions of one run. It lives in the run's
// TaskContext under ReportKey.
type Report struct {
	mu         sync.Mutex
	executions []*Execution
}

// ReportKey is the TaskContext slot holding the run's Report.
var ReportKey = projecttask.NewKey[*Report]("process.report")

// ReportFor returns the report of tc, creating it on first use.
func ReportFor(tc *projecttask.TaskContext) *Report {
	r, _ := projecttask.LoadOrStoreData(tc, ReportKey, &Report{})
	return r
}

func (r *Report) add(execs ...*Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions = append(r.executions, execs...)
}

// Executions returns the recorded executions in completion order.
func (r *Report) Executions() []*Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Execution(nil), r.executions...)
}

// Find returns the execution of a task.
func (r *Report) Find(id projecttask.TaskID) (*Execution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.executions {
		if e.TaskID == id {
			return e, true
		}
	}
	return nil, false
}

// Listener receives execution events. Calls come from the goroutines
// running the commands.
type Listener interface {
	ExecutionStarted(e *Execution)
	ExecutionOutput(e *Execution, line OutputLine)
	ExecutionProblem(e *Execution, p Problem)
	ExecutionFinished(e *Execution)
}
