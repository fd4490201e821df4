package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/watch"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "watch task...",
		Short: "Run tasks whenever project files change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			c := &console{app: a, quiet: rf.quiet}
			a.runner.AddListener(c)
			a.manager.AddObserver(c)

			ctx := cmd.Context()
			// Fail fast on names that do not resolve.
			_, graph, err := a.discover(ctx)
			if err != nil {
				return err
			}
			if _, err := graph.Select(a.root, args...); err != nil {
				return err
			}

			w, err := watch.New(a.root, a.cfg.WatcherConfig(), watch.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer w.Close()

			build := func(ctx context.Context, _ []watch.Event) (projecttask.Task, error) {
				// Task files may be among the changes.
				a.discovery.Invalidate(a.root)
				_, graph, err := a.discover(ctx)
				if err != nil {
					return nil, err
				}
				return graph.Select(a.root, args...)
			}
			report := func(events []watch.Event, _ *projecttask.Result, err error) {
				if err != nil && !errors.Is(err, projecttask.ErrCanceled) {
					a.print("watch: %v\n", err)
				}
				a.log.Debug("batch handled", "changes", len(events))
			}

			a.print("watching %s, press Ctrl+C to stop\n", a.root)
			h := watch.AutoRun(w, a, build, report, projecttask.WithRunConfiguration(rf.configuration))
			if err := w.Run(ctx, h); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}
