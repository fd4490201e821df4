package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projecttask/internal/runners/process"
)

// lineSource turns every non-empty line of a matching file into a
// definition named after the line.
type lineSource struct {
	name     string
	patterns []string
	priority int
	calls    atomic.Int32
}

func (s *lineSource) Name() string       { return s.name }
func (s *lineSource) Patterns() []string { return s.patterns }
func (s *lineSource) Priority() int      { return s.priority }

func (s *lineSource) Discover(_ context.Context, path string) ([]*Definition, error) {
	s.calls.Add(1)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(string(data), "!") {
		return nil, errors.New("bad file")
	}
	var defs []*Definition
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line != "" {
			defs = append(defs, &Definition{Name: line, Command: "echo " + line})
		}
	}
	return defs, nil
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func ids(res *Result) []string {
	out := make([]string, len(res.Definitions))
	for i, d := range res.Definitions {
		out[i] = d.ID
	}
	return out
}

func TestDiscovery_Discover(t *testing.T) {
	t.Run("Should walk to the configured depth and skip excluded dirs", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "tasks.txt", "build")
		write(t, root, "a/tasks.txt", "one")
		write(t, root, "a/b/c/tasks.txt", "three")
		write(t, root, "a/b/c/d/tasks.txt", "four")
		write(t, root, "node_modules/pkg/tasks.txt", "vendored")
		write(t, root, "other.md", "ignored")

		src := &lineSource{name: "lines", patterns: []string{"tasks.txt"}}
		d := New([]Source{src})
		res, err := d.Discover(context.Background(), DefaultOptions(root))
		require.NoError(t, err)

		assert.Equal(t, []string{
			"lines:a/b/c/tasks.txt:three",
			"lines:a/tasks.txt:one",
			"lines:tasks.txt:build",
		}, ids(res))
	})

	t.Run("Should fill in source, file, cwd, kind and group", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "sub/tasks.txt", "test")

		d := New([]Source{&lineSource{name: "lines", patterns: []string{"tasks.txt"}}})
		res, err := d.Discover(context.Background(), DefaultOptions(root))
		require.NoError(t, err)
		require.Len(t, res.Definitions, 1)

		def := res.Definitions[0]
		assert.Equal(t, "lines", def.Source)
		assert.Equal(t, filepath.Join(root, "sub", "tasks.txt"), def.SourceFile)
		assert.Equal(t, filepath.Join(root, "sub"), def.Cwd)
		assert.Equal(t, process.KindShell, def.Kind)
		assert.Equal(t, GroupTest, def.Group)
		assert.Equal(t, res.BySource["lines"], res.Definitions)
		assert.Equal(t, res.ByGroup[GroupTest], res.Definitions)
	})

	t.Run("Should give a file to the highest priority source only", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "tasks.txt", "x")

		low := &lineSource{name: "low", patterns: []string{"*.txt"}, priority: 1}
		high := &lineSource{name: "high", patterns: []string{"tasks.txt"}, priority: 10}
		d := New([]Source{low, high})
		res, err := d.Discover(context.Background(), DefaultOptions(root))
		require.NoError(t, err)

		assert.Equal(t, []string{"high:tasks.txt:x"}, ids(res))
		assert.Zero(t, low.calls.Load())
	})

	t.Run("Should match slash patterns against the relative path", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, ".ptask/tasks.txt", "root")
		write(t, root, "svc/.ptask/tasks.txt", "nested")
		write(t, root, "tasks.txt", "plain")

		d := New([]Source{&lineSource{name: "cfg", patterns: []string{"**/.ptask/tasks.txt"}}})
		res, err := d.Discover(context.Background(), DefaultOptions(root))
		require.NoError(t, err)
		assert.Equal(t, []string{
			"cfg:.ptask/tasks.txt:root",
			"cfg:svc/.ptask/tasks.txt:nested",
		}, ids(res))
	})

	t.Run("Should accept glob exclusions", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "build-out/tasks.txt", "skip")
		write(t, root, "src/tasks.txt", "keep")

		opts := DefaultOptions(root)
		opts.ExcludeDirs = []string{"build-*"}
		d := New([]Source{&lineSource{name: "lines", patterns: []string{"tasks.txt"}}})
		res, err := d.Discover(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"lines:src/tasks.txt:keep"}, ids(res))
	})

	t.Run("Should report parse failures without failing the pass", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "a/tasks.txt", "!broken")
		write(t, root, "b/tasks.txt", "ok")

		d := New([]Source{&lineSource{name: "lines", patterns: []string{"tasks.txt"}}})
		res, err := d.Discover(context.Background(), DefaultOptions(root))
		require.NoError(t, err)

		assert.Equal(t, []string{"lines:b/tasks.txt:ok"}, ids(res))
		require.Len(t, res.Errors, 1)
		var serr *SourceError
		require.ErrorAs(t, res.Errors[0], &serr)
		assert.Equal(t, "lines", serr.Source)
		assert.Equal(t, filepath.Join(root, "a", "tasks.txt"), serr.File)
		assert.EqualError(t, errors.Unwrap(serr), "bad file")
	})

	t.Run("Should restrict discovery to the named sources", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "tasks.txt", "a")
		write(t, root, "more.list", "b")

		d := New([]Source{
			&lineSource{name: "txt", patterns: []string{"*.txt"}},
			&lineSource{name: "list", patterns: []string{"*.list"}},
		})
		opts := DefaultOptions(root)
		opts.Sources = []string{"list"}
		res, err := d.Discover(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"list:more.list:b"}, ids(res))
	})

	t.Run("Should fail when the context is canceled", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "tasks.txt", "a")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := New([]Source{&lineSource{name: "lines", patterns: []string{"tasks.txt"}}})
		_, err := d.Discover(ctx, DefaultOptions(root))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Should fail for a missing root", func(t *testing.T) {
		d := New([]Source{&lineSource{name: "lines", patterns: []string{"tasks.txt"}}})
		_, err := d.Discover(context.Background(), DefaultOptions(filepath.Join(t.TempDir(), "nope")))
		assert.Error(t, err)
	})
}

func TestDiscovery_Cache(t *testing.T) {
	t.Run("Should serve repeated passes from the cache until invalidated", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "tasks.txt", "a")

		src := &lineSource{name: "lines", patterns: []string{"tasks.txt"}}
		d := New([]Source{src})
		opts := DefaultOptions(root)

		first, err := d.Discover(context.Background(), opts)
		require.NoError(t, err)
		second, err := d.Discover(context.Background(), opts)
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, int32(1), src.calls.Load())

		d.Invalidate(root)
		third, err := d.Discover(context.Background(), opts)
		require.NoError(t, err)
		assert.NotSame(t, first, third)
		assert.Equal(t, int32(2), src.calls.Load())
	})

	t.Run("Should expire entries after the TTL", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "tasks.txt", "a")

		src := &lineSource{name: "lines", patterns: []string{"tasks.txt"}}
		d := New([]Source{src}, WithCache(4, 20*time.Millisecond))
		_, err := d.Discover(context.Background(), DefaultOptions(root))
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, err := d.Discover(context.Background(), DefaultOptions(root))
			return err == nil && src.calls.Load() == 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Should not cache when disabled", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "tasks.txt", "a")

		src := &lineSource{name: "lines", patterns: []string{"tasks.txt"}}
		d := New([]Source{src}, WithCache(0, 0))
		for range 3 {
			_, err := d.Discover(context.Background(), DefaultOptions(root))
			require.NoError(t, err)
		}
		assert.Equal(t, int32(3), src.calls.Load())
	})
}

func TestDiscovery_Sources(t *testing.T) {
	d := New([]Source{
		&lineSource{name: "b"},
		&lineSource{name: "a"},
	})
	assert.Equal(t, []string{"a", "b"}, d.Sources())

	d.Unregister("a")
	_, ok := d.Source("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, d.Sources())
}

func TestInferGroup(t *testing.T) {
	cases := map[string]Group{
		"build":     GroupBuild,
		"Compile":   GroupBuild,
		"test:unit": GroupTest,
		"coverage":  GroupTest,
		"serve":     GroupRun,
		"clean-all": GroupClean,
		"lint":      GroupLint,
		"fmt":       GroupLint,
		"release":   GroupOther,
	}
	for name, want := range cases {
		assert.Equal(t, want, InferGroup(name), name)
	}
}
