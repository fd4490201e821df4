package projecttask

// Listener observes the run lifecycle.
type Listener interface {
	// BeforeRun is called before anything is dispatched. A non-nil error
	// vetoes the run; *ExecutionError is the conventional veto.
	BeforeRun(tc *TaskContext) error

	// AfterRun is called with the final result of a run that neither
	// aborted nor failed. A non-nil error marks the run as failed.
	AfterRun(result *Result) error
}

// Observer is notified when a run starts and finishes, whatever its outcome.
type Observer interface {
	Started(tc *TaskContext)
	Finished(result *Result)
}

// ListenerFuncs adapts plain functions to the Listener interface. Nil
// functions are no-ops.
type ListenerFuncs struct {
	Before func(tc *TaskContext) error
	After  func(result *Result) error
}

// BeforeRun implements Listener.
func (l ListenerFuncs) BeforeRun(tc *TaskContext) error {
	if l.Before == nil {
		return nil
	}
	return l.Before(tc)
}

// AfterRun implements Listener.
func (l ListenerFuncs) AfterRun(result *Result) error {
	if l.After == nil {
		return nil
	}
	return l.After(result)
}
