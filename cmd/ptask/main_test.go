package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/projecttask/internal/projecttask"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	makefile := ".PHONY: build test\n\n## compile everything\nbuild:\n\t@echo built\n\ntest: build\n\t@echo tested\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Makefile"), []byte(makefile), 0o644))
	return dir
}

func TestListCmd(t *testing.T) {
	t.Run("Should list discovered tasks", func(t *testing.T) {
		out, err := execute(t, "list", "--dir", project(t))
		require.NoError(t, err)
		assert.Contains(t, out, "makefile:build")
		assert.Contains(t, out, "makefile:test")
		assert.Contains(t, out, "compile everything")
	})

	t.Run("Should filter by group", func(t *testing.T) {
		out, err := execute(t, "list", "--dir", project(t), "--group", "test", "--ids")
		require.NoError(t, err)
		assert.Contains(t, out, "makefile:Makefile:test")
		assert.NotContains(t, out, "makefile:Makefile:build")
	})
}

func TestListJSON(t *testing.T) {
	out, err := execute(t, "list", "--dir", project(t), "--json")
	require.NoError(t, err)
	require.True(t, gjson.Valid(out))

	doc := gjson.Parse(out)
	assert.Equal(t, int64(2), doc.Get("tasks.#").Int())
	test := doc.Get(`tasks.#(name=="test")`)
	require.True(t, test.Exists())
	assert.Equal(t, "makefile", test.Get("source").String())
	assert.Equal(t, "build", test.Get("depends_on.0").String())
	assert.False(t, doc.Get("errors").Exists())
}

func TestRunCmd(t *testing.T) {
	t.Run("Should reject unknown task names", func(t *testing.T) {
		_, err := execute(t, "run", "--dir", project(t), "deploy")
		require.Error(t, err)
	})

	t.Run("Should reject an invalid log level", func(t *testing.T) {
		_, err := execute(t, "list", "--dir", project(t), "--log-level", "loud")
		require.Error(t, err)
	})
}

func TestExitCode(t *testing.T) {
	var exit *exitError

	t.Run("Should succeed for a clean result", func(t *testing.T) {
		assert.NoError(t, exitCode(projecttask.SuccessResult(), nil))
	})

	t.Run("Should fail for a result with errors", func(t *testing.T) {
		require.ErrorAs(t, exitCode(projecttask.ErrorResult(), nil), &exit)
		assert.Equal(t, 1, exit.code)
	})

	t.Run("Should report aborts and cancellation as interrupted", func(t *testing.T) {
		require.ErrorAs(t, exitCode(projecttask.AbortedResult(), nil), &exit)
		assert.Equal(t, 130, exit.code)
		require.ErrorAs(t, exitCode(nil, projecttask.ErrCanceled), &exit)
		assert.Equal(t, 130, exit.code)
	})

	t.Run("Should pass other errors through", func(t *testing.T) {
		boom := errors.New("boom")
		assert.Same(t, boom, exitCode(nil, boom))
	})
}
