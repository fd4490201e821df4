// Package manager runs project task graphs.
//
// A Manager ties the pieces of the engine together: it visits the graph
// into dependency waves, dispatches each wave to the runners of its
// registry, aggregates the batch results as they arrive and resolves one
// promise per run.
//
//	reg, _ := dispatch.NewRegistry(process.NewRunner(cfg))
//	m := manager.New(reg, manager.WithLogger(log))
//	defer m.Close(ctx)
//
//	p := m.Run(ctx, projecttask.NewTaskContext(), graph)
//	result, err := m.WaitFor(ctx, p)
//
// # Threading
//
// When Run is called with a context handed out by the interactive loop
// (see uiloop), the whole pipeline, listeners included, moves to the
// background pool before doing anything. Otherwise it starts on the
// caller's goroutine. Later waves and after-run listeners always run on
// the pool.
//
// # Outcome
//
// A run resolves with Aborted when a before-run listener vetoes it, when a
// batch aborts or when ctx is canceled; nothing further is dispatched
// after an abort. HasErrors is set when a batch fails, when the graph has
// a dependency cycle, or when an after-run listener fails.
package manager
