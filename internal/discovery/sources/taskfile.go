package sources

import (
	"context"
	"maps"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dshills/projecttask/internal/discovery"
	"github.com/dshills/projecttask/internal/runners/process"
)

// Taskfile discovers go-task tasks from Taskfile.yml.
type Taskfile struct{}

// NewTaskfile creates a Taskfile source.
func NewTaskfile() *Taskfile {
	return &Taskfile{}
}

// Name implements discovery.Source.
func (s *Taskfile) Name() string { return "taskfile" }

// Patterns implements discovery.Source.
func (s *Taskfile) Patterns() []string {
	return []string{"Taskfile.yml", "Taskfile.yaml", "taskfile.yml", "taskfile.yaml"}
}

// Priority implements discovery.Source.
func (s *Taskfile) Priority() int { return 95 }

type taskfileDoc struct {
	Version string                 `yaml:"version"`
	Env     map[string]string      `yaml:"env"`
	Tasks   map[string]taskfileDef `yaml:"tasks"`
}

type taskfileDef struct {
	Desc      string            `yaml:"desc"`
	Summary   string            `yaml:"summary"`
	Deps      []yaml.Node       `yaml:"deps"`
	Dir       string            `yaml:"dir"`
	Env       map[string]string `yaml:"env"`
	Generates []string          `yaml:"generates"`
	Internal  bool              `yaml:"internal"`
}

// Discover implements discovery.Source.
func (s *Taskfile) Discover(ctx context.Context, path string) ([]*discovery.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc taskfileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	var defs []*discovery.Definition
	for _, name := range sortedKeys(doc.Tasks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def := doc.Tasks[name]
		if def.Internal {
			continue
		}
		d := &discovery.Definition{
			Name:        name,
			Description: describe(def.Desc, def.Summary),
			Kind:        process.KindProcess,
			Group:       discovery.InferGroup(name),
			Command:     "task",
			Args:        []string{"--taskfile", path, name},
			Cwd:         base,
			Env:         mergeEnv(doc.Env, def.Env),
			DependsOn:   taskfileDeps(def.Deps),
			Outputs:     def.Generates,
			IsDefault:   name == "default",
		}
		if def.Dir != "" {
			d.Cwd = def.Dir
			if !filepath.IsAbs(d.Cwd) {
				d.Cwd = filepath.Join(base, def.Dir)
			}
			// generates entries are relative to the Taskfile.
			for i, out := range d.Outputs {
				if !filepath.IsAbs(out) {
					if rel, err := filepath.Rel(d.Cwd, filepath.Join(base, out)); err == nil {
						d.Outputs[i] = rel
					}
				}
			}
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// taskfileDeps accepts both "name" and {task: name} entries.
func taskfileDeps(nodes []yaml.Node) []string {
	var out []string
	for _, n := range nodes {
		switch n.Kind {
		case yaml.ScalarNode:
			out = append(out, n.Value)
		case yaml.MappingNode:
			var ref struct {
				Task string `yaml:"task"`
			}
			if err := n.Decode(&ref); err == nil && ref.Task != "" {
				out = append(out, ref.Task)
			}
		}
	}
	return out
}

func describe(desc, summary string) string {
	if desc != "" {
		return desc
	}
	return truncate(summary, 80)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func mergeEnv(global, local map[string]string) map[string]string {
	if len(global) == 0 && len(local) == 0 {
		return nil
	}
	out := make(map[string]string, len(global)+len(local))
	maps.Copy(out, global)
	maps.Copy(out, local)
	return out
}
