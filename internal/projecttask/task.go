package projecttask

import (
	"fmt"
	"sort"
	"strings"
)

// TaskID identifies a task within a run. IDs are assigned by whoever
// builds the graph; two tasks with the same ID are the same task as far
// as the engine is concerned.
type TaskID string

// Task is an opaque unit of schedulable work.
type Task interface {
	// ID returns the task identifier.
	ID() TaskID

	// Name returns a human readable name for logs and listings.
	Name() string

	// Dependencies returns the tasks that must complete before this one.
	// For a TaskList this is nil; its children are returned by Tasks.
	Dependencies() []Task
}

// BaseTask is an embeddable Task implementation holding an ID, a name and
// a dependency list.
type BaseTask struct {
	id   TaskID
	name string
	deps []Task
}

// NewBaseTask creates a task with the given id and display name.
func NewBaseTask(id TaskID, name string) *BaseTask {
	return &BaseTask{id: id, name: name}
}

// ID implements Task.
func (t *BaseTask) ID() TaskID { return t.id }

// Name implements Task.
func (t *BaseTask) Name() string {
	if t.name == "" {
		return string(t.id)
	}
	return t.name
}

// Dependencies implements Task.
func (t *BaseTask) Dependencies() []Task {
	return t.deps
}

// DependsOn adds dependencies and returns the task for chaining.
// It must not be called once the task has been submitted to a run.
func (t *BaseTask) DependsOn(deps ...Task) *BaseTask {
	t.deps = append(t.deps, deps...)
	return t
}

// SetName sets the display name.
func (t *BaseTask) SetName(name string) {
	t.name = name
}

// SetDependencies replaces the dependency list.
func (t *BaseTask) SetDependencies(deps []Task) {
	t.deps = deps
}

func (t *BaseTask) String() string {
	return fmt.Sprintf("Task(%s)", t.id)
}

// ModuleBuildTask builds one module of the project.
type ModuleBuildTask struct {
	BaseTask

	// Module is the module name or path.
	Module string

	// Incremental selects an incremental build; false means rebuild.
	Incremental bool

	// IncludeDependentModules also builds modules depending on Module.
	IncludeDependentModules bool

	// IncludeRuntimeDependencies also builds runtime-only dependencies.
	IncludeRuntimeDependencies bool
}

// NewModuleBuildTask creates a build task for module.
func NewModuleBuildTask(module string, incremental bool) *ModuleBuildTask {
	kind := "build"
	if !incremental {
		kind = "rebuild"
	}
	return &ModuleBuildTask{
		BaseTask:    BaseTask{id: TaskID(kind + ":" + module), name: kind + " " + module},
		Module:      module,
		Incremental: incremental,
	}
}

// FilesBuildTask compiles a specific set of files.
type FilesBuildTask struct {
	BaseTask

	// Files are the paths to compile.
	Files []string
}

// NewFilesBuildTask creates a task compiling files. The ID is derived from
// the sorted file list so the same set always maps to the same task.
func NewFilesBuildTask(files ...string) *FilesBuildTask {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	return &FilesBuildTask{
		BaseTask: BaseTask{
			id:   TaskID("compile:" + strings.Join(sorted, ",")),
			name: fmt.Sprintf("compile %d file(s)", len(sorted)),
		},
		Files: sorted,
	}
}

// RunConfigurationTask executes a named run configuration.
type RunConfigurationTask struct {
	BaseTask

	// Configuration is the run configuration name.
	Configuration string
}

// NewRunConfigurationTask creates a task executing configuration.
func NewRunConfigurationTask(configuration string) *RunConfigurationTask {
	return &RunConfigurationTask{
		BaseTask:      BaseTask{id: TaskID("run:" + configuration), name: "run " + configuration},
		Configuration: configuration,
	}
}

// EmptyTask stands for a scope with nothing to build. No runner claims it,
// so it always completes successfully through the dummy runner.
type EmptyTask struct {
	BaseTask
}

// NewEmptyTask creates an empty task.
func NewEmptyTask(id TaskID) *EmptyTask {
	return &EmptyTask{BaseTask: BaseTask{id: id, name: "nothing to build"}}
}
