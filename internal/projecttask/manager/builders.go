package manager

import (
	"context"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/promise"
)

// CreateModulesBuildTask returns a list with one build task per module.
// With no modules it returns a list holding an EmptyTask.
func CreateModulesBuildTask(modules []string, incremental, includeDependent, includeRuntime bool) *projecttask.TaskList {
	if len(modules) == 0 {
		return projecttask.NewTaskList(projecttask.NewEmptyTask("build:<none>"))
	}
	tasks := make([]projecttask.Task, 0, len(modules))
	for _, mod := range modules {
		t := projecttask.NewModuleBuildTask(mod, incremental)
		t.IncludeDependentModules = includeDependent
		t.IncludeRuntimeDependencies = includeRuntime
		tasks = append(tasks, t)
	}
	return projecttask.NewTaskList(tasks...)
}

// CreateAllModulesBuildTask builds every module of the module source.
func (m *Manager) CreateAllModulesBuildTask(incremental bool) *projecttask.TaskList {
	var modules []string
	if m.modules != nil {
		modules = m.modules()
	}
	return CreateModulesBuildTask(modules, incremental, false, true)
}

// Build incrementally builds modules.
func (m *Manager) Build(ctx context.Context, tc *projecttask.TaskContext, modules ...string) *promise.Promise[*projecttask.Result] {
	return m.Run(ctx, tc, CreateModulesBuildTask(modules, true, false, true))
}

// Rebuild builds modules from scratch.
func (m *Manager) Rebuild(ctx context.Context, tc *projecttask.TaskContext, modules ...string) *promise.Promise[*projecttask.Result] {
	return m.Run(ctx, tc, CreateModulesBuildTask(modules, false, false, true))
}

// BuildAll incrementally builds every module.
func (m *Manager) BuildAll(ctx context.Context, tc *projecttask.TaskContext) *promise.Promise[*projecttask.Result] {
	return m.Run(ctx, tc, m.CreateAllModulesBuildTask(true))
}

// RebuildAll builds every module from scratch.
func (m *Manager) RebuildAll(ctx context.Context, tc *projecttask.TaskContext) *promise.Promise[*projecttask.Result] {
	return m.Run(ctx, tc, m.CreateAllModulesBuildTask(false))
}

// Compile compiles files.
func (m *Manager) Compile(ctx context.Context, tc *projecttask.TaskContext, files ...string) *promise.Promise[*projecttask.Result] {
	if len(files) == 0 {
		return m.Run(ctx, tc, projecttask.NewEmptyTask("compile:<none>"))
	}
	return m.Run(ctx, tc, projecttask.NewFilesBuildTask(files...))
}

// Execute runs the named run configuration. A nil tc gets a context
// carrying the configuration name.
func (m *Manager) Execute(ctx context.Context, tc *projecttask.TaskContext, configuration string) *promise.Promise[*projecttask.Result] {
	if tc == nil {
		tc = projecttask.NewTaskContext(projecttask.WithRunConfiguration(configuration))
	}
	return m.Run(ctx, tc, projecttask.NewRunConfigurationTask(configuration))
}
