package main

import (
	"errors"
	"time"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/runners/process"
)

// console streams process output and run summaries to the app output.
type console struct {
	app   *app
	quiet bool
}

func (c *console) ExecutionStarted(e *process.Execution) {
	c.app.print("==> %s: %s\n", e.TaskID, e.Command)
}

func (c *console) ExecutionOutput(e *process.Execution, line process.OutputLine) {
	if c.quiet {
		return
	}
	c.app.print("[%s] %s\n", e.TaskID, line.Content)
}

func (c *console) ExecutionProblem(e *process.Execution, p process.Problem) {
	c.app.print("[%s] %s\n", e.TaskID, p)
}

func (c *console) ExecutionFinished(e *process.Execution) {
	switch e.State() {
	case process.StateSucceeded:
		c.app.print("<== %s ok (%s)\n", e.TaskID, e.Duration().Round(time.Millisecond))
	case process.StateCanceled:
		c.app.print("<== %s canceled\n", e.TaskID)
	default:
		c.app.print("<== %s failed, exit %d: %v\n", e.TaskID, e.ExitCode(), e.Err())
	}
}

// Started implements projecttask.Observer.
func (c *console) Started(tc *projecttask.TaskContext) {
	if tc.AutoRun {
		c.app.print("--- auto run %s\n", tc.SessionID)
	}
}

// Finished implements projecttask.Observer.
func (c *console) Finished(res *projecttask.Result) {
	c.summarize(res)
}

func (c *console) summarize(res *projecttask.Result) {
	var ok, failed, skipped int
	for _, id := range res.TaskIDs() {
		switch s, _ := res.State(id); s {
		case projecttask.TaskSucceeded:
			ok++
		case projecttask.TaskFailed:
			failed++
		default:
			skipped++
		}
	}
	status := "succeeded"
	switch {
	case res.Aborted:
		status = "aborted"
	case res.HasErrors:
		status = "failed"
	}
	c.app.print("run %s: %d ok, %d failed, %d skipped\n", status, ok, failed, skipped)
}

// exitCode maps a run outcome to the process exit code.
func exitCode(res *projecttask.Result, err error) error {
	switch {
	case errors.Is(err, projecttask.ErrCanceled):
		return &exitError{code: 130}
	case err != nil:
		return err
	case res.Aborted:
		return &exitError{code: 130}
	case res.HasErrors:
		return &exitError{code: 1}
	}
	return nil
}
