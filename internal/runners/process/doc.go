// Package process provides a runner that executes tasks as operating
// system processes.
//
// The runner claims CommandTask values and, when the matching command is
// configured, the engine's built-in build tasks:
//
//	ModuleBuildTask       Config.BuildCommand / Config.RebuildCommand
//	FilesBuildTask        Config.CompileCommand
//	RunConfigurationTask  Config.RunConfigurations[name]
//
// Commands go through variable substitution before they run:
//
//	${workspaceFolder}          workspace root
//	${workspaceFolderBasename}  last element of the workspace root
//	${taskId}, ${taskName}      the task being run
//	${sessionId}                the TaskContext session
//	${module}, ${files}         build task parameters
//	${env:NAME}                 environment variable
//	${name:default}             any variable with a fallback
//
// Output is scanned line by line and fed to the task's problem matcher.
// A batch has errors when any command exits non-zero or reports an
// error-severity problem, and is aborted when its context is canceled.
// Every execution is recorded in the run's Report.
package process
