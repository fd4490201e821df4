package process

import "github.com/dshills/projecttask/internal/projecttask"

// Kind selects how a command is started.
type Kind string

const (
	// KindShell runs Command as a shell line with Args appended escaped.
	KindShell Kind = "shell"
	// KindProcess starts Command directly with Args.
	KindProcess Kind = "process"
)

// CommandTask is a task backed by an external command.
type CommandTask struct {
	projecttask.BaseTask

	// Kind selects shell or direct execution. Empty means KindShell.
	Kind Kind

	// Command is the shell line or the executable.
	Command string

	// Args are extra arguments.
	Args []string

	// Cwd is the working directory. Empty uses the runner's directory.
	Cwd string

	// Env holds extra environment variables.
	Env map[string]string

	// ProblemMatcher names the matcher applied to the output.
	ProblemMatcher string

	// Outputs are files the command produces, relative to Cwd. They are
	// reported to the TaskContext after a successful run.
	Outputs []string

	// Source names where the task was defined, e.g. "makefile".
	Source string

	// Group classifies the task (build, test, clean, ...).
	Group string
}

// NewCommandTask creates a shell task.
func NewCommandTask(id projecttask.TaskID, command string, args ...string) *CommandTask {
	return &CommandTask{
		BaseTask: *projecttask.NewBaseTask(id, ""),
		Kind:     KindShell,
		Command:  command,
		Args:     args,
	}
}

// WithName sets the display name.
func (t *CommandTask) WithName(name string) *CommandTask {
	t.SetName(name)
	return t
}

func (t *CommandTask) kind() Kind {
	if t.Kind == "" {
		return KindShell
	}
	return t.Kind
}
