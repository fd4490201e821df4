package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTask is returned by Graph.Select for names that match nothing.
	ErrUnknownTask = errors.New("unknown task")

	// ErrAmbiguousTask is returned by Graph.Select when a name matches
	// definitions in more than one file.
	ErrAmbiguousTask = errors.New("ambiguous task name")
)

// SourceError reports a file a source could not parse.
type SourceError struct {
	Source string
	File   string
	Err    error
}

func (e *SourceError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.File, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// MissingDependency is a DependsOn entry that names no known definition.
type MissingDependency struct {
	Task string
	Name string
}

func (m MissingDependency) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %q", m.Task, m.Name)
}
