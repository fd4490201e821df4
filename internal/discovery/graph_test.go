package discovery

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/runners/process"
)

const root = "/proj"

func def(source, file, name string, deps ...string) *Definition {
	path := filepath.Join(root, file)
	return &Definition{
		ID:         definitionID(root, source, path, name),
		Name:       name,
		Source:     source,
		SourceFile: path,
		Kind:       process.KindProcess,
		Group:      InferGroup(name),
		Command:    "run-" + name,
		Cwd:        filepath.Dir(path),
		DependsOn:  deps,
	}
}

func depIDs(t *process.CommandTask) []projecttask.TaskID {
	var out []projecttask.TaskID
	for _, d := range t.Dependencies() {
		out = append(out, d.ID())
	}
	return out
}

func TestGraph_Resolution(t *testing.T) {
	t.Run("Should prefer a definition from the same file", func(t *testing.T) {
		g := NewGraph([]*Definition{
			def("makefile", "Makefile", "build"),
			def("makefile", "Makefile", "test", "build"),
			def("makefile", "lib/Makefile", "build"),
			def("makefile", "lib/Makefile", "test", "build"),
		})
		require.Empty(t, g.Missing)

		top, ok := g.Task("makefile:Makefile:test")
		require.True(t, ok)
		assert.Equal(t, []projecttask.TaskID{"makefile:Makefile:build"}, depIDs(top))

		lib, ok := g.Task("makefile:lib/Makefile:test")
		require.True(t, ok)
		assert.Equal(t, []projecttask.TaskID{"makefile:lib/Makefile:build"}, depIDs(lib))
	})

	t.Run("Should resolve names unique across files and full IDs", func(t *testing.T) {
		g := NewGraph([]*Definition{
			def("ptask", ".ptask/tasks.toml", "ci", "generate", "npm:web/package.json:build"),
			def("makefile", "Makefile", "generate"),
			def("npm", "web/package.json", "build"),
			def("makefile", "Makefile", "build"),
		})
		require.NoError(t, g.Err())

		ci, _ := g.Task("ptask:.ptask/tasks.toml:ci")
		assert.Equal(t, []projecttask.TaskID{
			"makefile:Makefile:generate",
			"npm:web/package.json:build",
		}, depIDs(ci))
	})

	t.Run("Should report unknown, ambiguous and self dependencies", func(t *testing.T) {
		g := NewGraph([]*Definition{
			def("ptask", ".ptask/tasks.toml", "ci", "missing", "build", "ci"),
			def("makefile", "Makefile", "build"),
			def("npm", "web/package.json", "build"),
		})
		require.Len(t, g.Missing, 3)
		assert.Equal(t, "missing", g.Missing[0].Name)
		assert.Equal(t, "build", g.Missing[1].Name)
		assert.Equal(t, "ci", g.Missing[2].Name)

		err := g.Err()
		require.Error(t, err)
		var missing MissingDependency
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "ptask:.ptask/tasks.toml:ci", missing.Task)

		ci, _ := g.Task("ptask:.ptask/tasks.toml:ci")
		assert.Empty(t, ci.Dependencies())
	})

	t.Run("Should carry definition fields onto the task", func(t *testing.T) {
		d := def("taskfile", "Taskfile.yml", "build")
		d.Args = []string{"--taskfile", "Taskfile.yml", "build"}
		d.Env = map[string]string{"A": "1"}
		d.Outputs = []string{"bin/app"}
		d.ProblemMatcher = "$go"

		g := NewGraph([]*Definition{d})
		task := g.Tasks()[0]
		assert.Equal(t, projecttask.TaskID(d.ID), task.ID())
		assert.Equal(t, "taskfile:build", task.Name())
		assert.Equal(t, process.KindProcess, task.Kind)
		assert.Equal(t, "run-build", task.Command)
		assert.Equal(t, d.Args, task.Args)
		assert.Equal(t, d.Cwd, task.Cwd)
		assert.Equal(t, d.Env, task.Env)
		assert.Equal(t, d.Outputs, task.Outputs)
		assert.Equal(t, "$go", task.ProblemMatcher)
		assert.Equal(t, "taskfile", task.Source)
		assert.Equal(t, "build", task.Group)

		back, ok := g.Definition(task)
		require.True(t, ok)
		assert.Same(t, d, back)
	})

	t.Run("Should drop duplicate IDs", func(t *testing.T) {
		g := NewGraph([]*Definition{
			def("makefile", "Makefile", "build"),
			def("makefile", "Makefile", "build"),
		})
		assert.Len(t, g.Tasks(), 1)
	})
}

func TestGraph_Lookup(t *testing.T) {
	g := NewGraph([]*Definition{
		def("makefile", "Makefile", "build"),
		def("npm", "web/package.json", "build"),
		def("npm", "web/package.json", "lint"),
		def("npm", "api/package.json", "lint"),
		def("npm", "web/package.json", "test:unit"),
	})

	t.Run("Should find by ID, name and qualified name", func(t *testing.T) {
		cases := map[string]projecttask.TaskID{
			"npm:web/package.json:build": "npm:web/package.json:build",
			"test:unit":                  "npm:web/package.json:test:unit",
			"npm:build":                  "npm:web/package.json:build",
			"web/lint":                   "npm:web/package.json:lint",
			"api/lint":                   "npm:api/package.json:lint",
		}
		for name, want := range cases {
			task, err := g.Lookup(root, name)
			require.NoError(t, err, name)
			assert.Equal(t, want, task.ID(), name)
		}
	})

	t.Run("Should prefer the definition closest to the root", func(t *testing.T) {
		task, err := g.Lookup(root, "build")
		require.NoError(t, err)
		assert.Equal(t, projecttask.TaskID("makefile:Makefile:build"), task.ID())
	})

	t.Run("Should reject unknown and ambiguous names", func(t *testing.T) {
		_, err := g.Lookup(root, "deploy")
		assert.ErrorIs(t, err, ErrUnknownTask)

		_, err = g.Lookup(root, "lint")
		assert.ErrorIs(t, err, ErrAmbiguousTask)
	})

	t.Run("Should select several tasks into one list", func(t *testing.T) {
		list, err := g.Select(root, "build", "web/lint")
		require.NoError(t, err)
		require.Equal(t, 2, list.Len())
		assert.Equal(t, projecttask.TaskID("makefile:Makefile:build"), list.Tasks()[0].ID())

		_, err = g.Select(root, "build", "deploy", "lint")
		assert.ErrorIs(t, err, ErrUnknownTask)
		assert.ErrorIs(t, err, ErrAmbiguousTask)
	})
}
