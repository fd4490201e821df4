package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/projecttask/internal/discovery"
	"github.com/dshills/projecttask/internal/runners/process"
)

// TasksFile discovers tasks declared in .ptask/tasks.toml:
//
//	[[task]]
//	name = "build"
//	command = "go build ./..."
//	depends_on = ["generate"]
//	outputs = ["bin/app"]
//	problem_matcher = "$go"
//
// Relative cwd values resolve against the directory holding .ptask.
type TasksFile struct{}

// NewTasksFile creates a tasks.toml source.
func NewTasksFile() *TasksFile {
	return &TasksFile{}
}

// Name implements discovery.Source.
func (s *TasksFile) Name() string { return "ptask" }

// Patterns implements discovery.Source.
func (s *TasksFile) Patterns() []string { return []string{"**/.ptask/tasks.toml"} }

// Priority implements discovery.Source.
func (s *TasksFile) Priority() int { return 200 }

type tasksDoc struct {
	Env   map[string]string `toml:"env"`
	Tasks []tasksEntry      `toml:"task"`
}

type tasksEntry struct {
	Name           string            `toml:"name"`
	Description    string            `toml:"description"`
	Kind           string            `toml:"kind"`
	Group          string            `toml:"group"`
	Command        string            `toml:"command"`
	Args           []string          `toml:"args"`
	Cwd            string            `toml:"cwd"`
	Env            map[string]string `toml:"env"`
	DependsOn      []string          `toml:"depends_on"`
	ProblemMatcher string            `toml:"problem_matcher"`
	Outputs        []string          `toml:"outputs"`
	Default        bool              `toml:"default"`
}

// Discover implements discovery.Source.
func (s *TasksFile) Discover(ctx context.Context, path string) ([]*discovery.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc tasksDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	project := filepath.Dir(filepath.Dir(path))
	seen := make(map[string]bool, len(doc.Tasks))
	var defs []*discovery.Definition
	for i, e := range doc.Tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.Name == "" || e.Command == "" {
			return nil, fmt.Errorf("task #%d: name and command are required", i+1)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("task %q defined twice", e.Name)
		}
		seen[e.Name] = true

		kind, err := parseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", e.Name, err)
		}
		cwd := project
		if e.Cwd != "" {
			cwd = e.Cwd
			if !filepath.IsAbs(cwd) {
				cwd = filepath.Join(project, cwd)
			}
		}
		defs = append(defs, &discovery.Definition{
			Name:           e.Name,
			Description:    e.Description,
			Kind:           kind,
			Group:          discovery.Group(e.Group),
			Command:        e.Command,
			Args:           e.Args,
			Cwd:            cwd,
			Env:            mergeEnv(doc.Env, e.Env),
			DependsOn:      e.DependsOn,
			ProblemMatcher: e.ProblemMatcher,
			Outputs:        e.Outputs,
			IsDefault:      e.Default,
		})
	}
	return defs, nil
}

func parseKind(s string) (process.Kind, error) {
	switch process.Kind(s) {
	case "", process.KindShell:
		return process.KindShell, nil
	case process.KindProcess:
		return process.KindProcess, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}
