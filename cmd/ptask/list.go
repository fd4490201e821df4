package main

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/dshills/projecttask/internal/discovery"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	var (
		group  string
		source string
		ids    bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			res, graph, err := a.discover(cmd.Context())
			if err != nil {
				return err
			}

			defs := filter(res.Definitions, group, source)
			if asJSON {
				doc, err := listJSON(defs, res, graph)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range defs {
				name := d.Source + ":" + d.Name
				if ids {
					name = d.ID
				}
				mark := " "
				if d.IsDefault {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s %s\t%s\t%s\n", mark, name, d.Group, d.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			for _, se := range res.Errors {
				fmt.Fprintf(os.Stderr, "warning: %v\n", se)
			}
			for _, m := range graph.Missing {
				fmt.Fprintf(os.Stderr, "warning: %v\n", m)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "Only list tasks of this group")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Only list tasks from this source")
	cmd.Flags().BoolVar(&ids, "ids", false, "Print full task IDs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	_ = cmd.RegisterFlagCompletionFunc("group", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		groups := []string{
			string(discovery.GroupBuild), string(discovery.GroupTest), string(discovery.GroupRun),
			string(discovery.GroupClean), string(discovery.GroupLint), string(discovery.GroupOther),
		}
		slices.Sort(groups)
		return groups, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func filter(defs []*discovery.Definition, group, source string) []*discovery.Definition {
	var out []*discovery.Definition
	for _, d := range defs {
		if group != "" && string(d.Group) != group {
			continue
		}
		if source != "" && d.Source != source {
			continue
		}
		out = append(out, d)
	}
	return out
}

func listJSON(defs []*discovery.Definition, res *discovery.Result, graph *discovery.Graph) ([]byte, error) {
	doc := []byte(`{"tasks":[]}`)
	var err error
	for _, d := range defs {
		task := map[string]any{
			"id":      d.ID,
			"name":    d.Name,
			"source":  d.Source,
			"file":    d.SourceFile,
			"group":   d.Group,
			"command": d.Command,
			"default": d.IsDefault,
		}
		if d.Description != "" {
			task["description"] = d.Description
		}
		if len(d.DependsOn) > 0 {
			task["depends_on"] = d.DependsOn
		}
		if doc, err = sjson.SetBytes(doc, "tasks.-1", task); err != nil {
			return nil, err
		}
	}
	for _, se := range res.Errors {
		if doc, err = sjson.SetBytes(doc, "errors.-1", se.Error()); err != nil {
			return nil, err
		}
	}
	for _, m := range graph.Missing {
		if doc, err = sjson.SetBytes(doc, "missing.-1", m.Error()); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
