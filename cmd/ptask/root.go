package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile string
	dir        string
	logLevel   string
	scripts    []string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "ptask",
		Short:         "Discover and run project tasks",
		Long:          "ptask finds the tasks declared by Makefiles, Taskfiles, package.json scripts and .ptask/tasks.toml,\nand runs them in dependency order.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Path to an extra configuration file")
	pf.StringVarP(&flags.dir, "dir", "C", ".", "Project directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringArrayVar(&flags.scripts, "script", nil, "Lua runner script to register (repeatable)")

	root.AddCommand(
		newListCmd(flags),
		newRunCmd(flags),
		newBuildCmd(flags),
		newCompileCmd(flags),
		newExecCmd(flags),
		newWatchCmd(flags),
	)
	return root
}
