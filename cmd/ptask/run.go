package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/promise"
)

var errNoDefaultTasks = errors.New("no task names given and no default tasks found")

type runFlags struct {
	quiet         bool
	configuration string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not stream command output")
	cmd.Flags().StringVar(&f.configuration, "configuration", "", "Run configuration the run serves")
}

// pending is the promise of a run.
type pending = *promise.Promise[*projecttask.Result]

// launchFunc starts a run.
type launchFunc func(ctx context.Context) pending

// start wires the console, lets prepare resolve what to run and starts
// it from the interactive loop.
func (f *runFlags) start(cmd *cobra.Command, flags *globalFlags, prepare func(ctx context.Context, a *app, tc *projecttask.TaskContext) (launchFunc, error)) error {
	a, err := newApp(flags, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	c := &console{app: a, quiet: f.quiet}
	a.runner.AddListener(c)
	a.manager.AddObserver(c)

	ctx := cmd.Context()
	tc := projecttask.NewTaskContext(projecttask.WithRunConfiguration(f.configuration))
	launch, err := prepare(ctx, a, tc)
	if err != nil {
		return err
	}
	res, err := a.manager.WaitFor(ctx, a.launch(ctx, launch))
	return exitCode(res, err)
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run discovered tasks and their dependencies",
		Long:  "Run the named tasks in dependency order. Names may be plain (build), qualified by source (npm:build)\nor by directory (web/build). With no names the default tasks run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rf.start(cmd, flags, func(ctx context.Context, a *app, tc *projecttask.TaskContext) (launchFunc, error) {
				res, graph, err := a.discover(ctx)
				if err != nil {
					return nil, err
				}
				names := args
				if len(names) == 0 {
					for _, d := range res.Definitions {
						if d.IsDefault {
							names = append(names, d.ID)
						}
					}
					if len(names) == 0 {
						return nil, errNoDefaultTasks
					}
				}
				task, err := graph.Select(a.root, names...)
				if err != nil {
					return nil, err
				}
				return func(ctx context.Context) pending { return a.manager.Run(ctx, tc, task) }, nil
			})
		},
	}
	rf.register(cmd)
	return cmd
}

func newBuildCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "build [module...]",
		Short: "Build modules with the configured build command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rf.start(cmd, flags, func(ctx context.Context, a *app, tc *projecttask.TaskContext) (launchFunc, error) {
				switch {
				case len(args) == 0 && rebuild:
					return func(ctx context.Context) pending { return a.manager.RebuildAll(ctx, tc) }, nil
				case len(args) == 0:
					return func(ctx context.Context) pending { return a.manager.BuildAll(ctx, tc) }, nil
				case rebuild:
					return func(ctx context.Context) pending { return a.manager.Rebuild(ctx, tc, args...) }, nil
				default:
					return func(ctx context.Context) pending { return a.manager.Build(ctx, tc, args...) }, nil
				}
			})
		},
	}
	rf.register(cmd)
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Build from scratch")
	return cmd
}

func newCompileCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "compile file...",
		Short: "Compile files with the configured compile command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rf.start(cmd, flags, func(ctx context.Context, a *app, tc *projecttask.TaskContext) (launchFunc, error) {
				return func(ctx context.Context) pending { return a.manager.Compile(ctx, tc, args...) }, nil
			})
		},
	}
	rf.register(cmd)
	return cmd
}

func newExecCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "exec configuration",
		Short: "Run a configured run configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rf.start(cmd, flags, func(ctx context.Context, a *app, tc *projecttask.TaskContext) (launchFunc, error) {
				return func(ctx context.Context) pending { return a.manager.Execute(ctx, tc, args[0]) }, nil
			})
		},
	}
	rf.register(cmd)
	return cmd
}
