package projecttask

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the projecttask package.
var (
	// ErrCanceled is the cancellation signal. Runners and listeners return
	// it (or wrap it) to stop a run; dispatch rethrows it instead of
	// treating it as an ordinary probe failure.
	ErrCanceled = errors.New("project task run canceled")

	// ErrDependencyCycle is matched by errors.Is for every *CycleError.
	ErrDependencyCycle = errors.New("task dependency cycle")
)

// IsCanceled reports whether err is a cancellation signal, either
// ErrCanceled or a context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// ExecutionError is the defined failure a before-run listener returns to
// veto a run.
type ExecutionError struct {
	Message string
	Err     error
}

// NewExecutionError creates an ExecutionError with a formatted message.
func NewExecutionError(format string, args ...any) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution error: %s: %v", e.Message, e.Err)
	}
	return "execution error: " + e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// CycleError reports a dependency cycle found while visiting a graph.
type CycleError struct {
	// Path lists the task IDs forming the cycle; the first and last
	// entries are the same task.
	Path []TaskID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return fmt.Sprintf("task dependency cycle: %s", strings.Join(parts, " -> "))
}

// Is makes errors.Is(err, ErrDependencyCycle) true for every CycleError.
func (e *CycleError) Is(target error) bool {
	return target == ErrDependencyCycle
}
