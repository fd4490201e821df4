package discovery

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/runners/process"
)

// Graph is the set of process tasks built from discovered definitions,
// with DependsOn names resolved to task edges.
type Graph struct {
	tasks  []*process.CommandTask
	byID   map[string]*process.CommandTask
	byName map[string][]*process.CommandTask
	defs   map[*process.CommandTask]*Definition

	// Missing lists dependency names that resolved to nothing. The
	// dependent task is still built, without the edge.
	Missing []MissingDependency
}

// NewGraph builds a Graph from defs. A dependency name is looked up in
// the same file first, then as a definition ID, then as a name that is
// unique across all files.
func NewGraph(defs []*Definition) *Graph {
	g := &Graph{
		byID:   make(map[string]*process.CommandTask, len(defs)),
		byName: make(map[string][]*process.CommandTask),
		defs:   make(map[*process.CommandTask]*Definition, len(defs)),
	}
	byFile := make(map[string]*process.CommandTask, len(defs))

	for _, d := range defs {
		if _, dup := g.byID[d.ID]; dup {
			continue
		}
		t := toCommandTask(d)
		g.tasks = append(g.tasks, t)
		g.byID[d.ID] = t
		g.byName[d.Name] = append(g.byName[d.Name], t)
		g.defs[t] = d
		byFile[fileKey(d.SourceFile, d.Name)] = t
	}

	for _, t := range g.tasks {
		d := g.defs[t]
		var deps []projecttask.Task
		for _, name := range d.DependsOn {
			dep := byFile[fileKey(d.SourceFile, name)]
			if dep == nil {
				dep = g.byID[name]
			}
			if dep == nil {
				if same := g.byName[name]; len(same) == 1 {
					dep = same[0]
				}
			}
			if dep == nil || dep == t {
				g.Missing = append(g.Missing, MissingDependency{Task: d.ID, Name: name})
				continue
			}
			deps = append(deps, dep)
		}
		t.SetDependencies(deps)
	}
	return g
}

func fileKey(file, name string) string {
	return file + "\x00" + name
}

func toCommandTask(d *Definition) *process.CommandTask {
	name := d.Name
	if d.Source != "" {
		name = d.Source + ":" + d.Name
	}
	t := process.NewCommandTask(projecttask.TaskID(d.ID), d.Command, d.Args...).WithName(name)
	t.Kind = d.Kind
	t.Cwd = d.Cwd
	t.Env = d.Env
	t.ProblemMatcher = d.ProblemMatcher
	t.Outputs = d.Outputs
	t.Source = d.Source
	t.Group = string(d.Group)
	return t
}

// Tasks returns every task in definition order.
func (g *Graph) Tasks() []*process.CommandTask {
	return g.tasks
}

// Task returns the task built for the definition with the given ID.
func (g *Graph) Task(id string) (*process.CommandTask, bool) {
	t, ok := g.byID[id]
	return t, ok
}

// Definition returns the definition a task was built from.
func (g *Graph) Definition(t *process.CommandTask) (*Definition, bool) {
	d, ok := g.defs[t]
	return d, ok
}

// Err joins the missing dependencies, or returns nil.
func (g *Graph) Err() error {
	if len(g.Missing) == 0 {
		return nil
	}
	errs := make([]error, len(g.Missing))
	for i, m := range g.Missing {
		errs[i] = m
	}
	return errors.Join(errs...)
}

// Lookup resolves a user-supplied name. It accepts a definition ID, a
// plain name, "source:name", or "dir/name" with dir relative to root.
func (g *Graph) Lookup(root, name string) (*process.CommandTask, error) {
	if t, ok := g.byID[name]; ok {
		return t, nil
	}

	candidates := g.byName[name]
	if len(candidates) == 0 {
		if i := strings.LastIndexAny(name, ":/"); i > 0 {
			qualifier, base := name[:i], name[i+1:]
			for _, t := range g.byName[base] {
				d := g.defs[t]
				if d.Source == qualifier || relDir(root, d.SourceFile) == qualifier {
					candidates = append(candidates, t)
				}
			}
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	case 1:
		return candidates[0], nil
	}

	// Prefer the definition closest to root.
	best, bestDepth, tie := candidates[0], depth(root, g.defs[candidates[0]].SourceFile), false
	for _, t := range candidates[1:] {
		dd := depth(root, g.defs[t].SourceFile)
		switch {
		case dd < bestDepth:
			best, bestDepth, tie = t, dd, false
		case dd == bestDepth:
			tie = true
		}
	}
	if tie {
		ids := make([]string, len(candidates))
		for i, t := range candidates {
			ids[i] = string(t.ID())
		}
		return nil, fmt.Errorf("%w: %s matches %s", ErrAmbiguousTask, name, strings.Join(ids, ", "))
	}
	return best, nil
}

// Select resolves names with Lookup and returns them as one task list.
func (g *Graph) Select(root string, names ...string) (*projecttask.TaskList, error) {
	list := projecttask.NewNamedTaskList(projecttask.TaskID("select:" + strings.Join(names, ",")))
	var errs []error
	for _, name := range names {
		t, err := g.Lookup(root, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		list.Add(t)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return list, nil
}

func relDir(root, file string) string {
	rel, err := filepath.Rel(root, filepath.Dir(file))
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

func depth(root, file string) int {
	rel := relDir(root, file)
	if rel == "." || rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}
