package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnore_Match(t *testing.T) {
	ig := NewIgnore(
		"*.log",
		"/build",
		"dist/",
		"docs/**/*.tmp",
		"!keep.log",
		"# comment",
		"",
	)

	cases := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"app.log", false, true},
		{"sub/deep/app.log", false, true},
		{"keep.log", false, false},
		{"sub/keep.log", false, false},
		{"build", true, true},
		{"build/out.o", false, true},
		{"src/build", true, false},
		{"src/build/x.go", false, false},
		{"dist", true, true},
		{"web/dist/main.js", false, true},
		{"dist", false, false},
		{"docs/a/b/c.tmp", false, true},
		{"src/c.tmp", false, false},
		{"main.go", false, false},
		{".", true, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ig.Match(tc.path, tc.isDir), tc.path)
	}
}

func TestIgnore_Patterns(t *testing.T) {
	t.Run("Should keep patterns as added and skip comments", func(t *testing.T) {
		ig := NewIgnore("*.log", "# note", "  ", "!x")
		assert.Equal(t, []string{"*.log", "!x"}, ig.Patterns())
	})

	t.Run("Should reject malformed globs", func(t *testing.T) {
		ig := NewIgnore()
		assert.Error(t, ig.Add("[abc"))
		assert.Empty(t, ig.Patterns())
	})
}

func TestIgnore_AddFile(t *testing.T) {
	t.Run("Should load a gitignore file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".gitignore")
		require.NoError(t, os.WriteFile(path, []byte("# deps\nnode_modules/\n*.out\n"), 0o644))

		ig := NewIgnore()
		require.NoError(t, ig.AddFile(path))
		assert.True(t, ig.Match("web/node_modules/x/index.js", false))
		assert.True(t, ig.Match("a.out", false))
	})

	t.Run("Should accept a missing file", func(t *testing.T) {
		ig := NewIgnore()
		assert.NoError(t, ig.AddFile(filepath.Join(t.TempDir(), ".gitignore")))
	})
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "CREATE|WRITE", (OpCreate | OpWrite).String())
	assert.Equal(t, "REMOVE", OpRemove.String())
	assert.Equal(t, "NONE", Op(0).String())
}
