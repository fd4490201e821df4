// Package projecttask defines the task graph model of the project task
// engine: tasks, composite task lists, the per-run TaskContext, results,
// and the Runner and Listener extension points.
//
// # Architecture
//
// A run moves through these stages:
//
//	caller graph ──► Visit (dependency waves)
//	                   │
//	                   ▼
//	            dispatch.SelectRunners ──► (runner, batch) pairs
//	                   │
//	                   ▼
//	            manager.Manager (coordinator + aggregator + listeners)
//	                   │
//	                   ▼
//	            promise.Promise[*Result]
//
// This package holds only the shared vocabulary. The dispatcher lives in
// the dispatch subpackage, listener ordering in hook, and the coordinator
// in manager.
//
// # Tasks
//
// A Task is identified by its TaskID. Dependencies are declared with
// BaseTask.DependsOn before a run starts; the engine never mutates tasks.
// A TaskList groups tasks without being dispatched itself:
//
//	compile := projecttask.NewModuleBuildTask("core", true)
//	test := projecttask.NewBaseTask("test", "go test").DependsOn(compile)
//	root := projecttask.NewTaskList(compile, test)
//
// # Waves
//
// Visit flattens a graph into waves. Every dependency of a task is
// emitted in an earlier wave than the task itself, and each leaf task is
// emitted once. Cycles are reported as a *CycleError.
package projecttask
