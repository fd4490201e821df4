package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/runners/process"
)

const buildScript = `
function can_run(task)
  return task.kind == "module_build" or string.sub(task.id, 1, 4) == "lua:"
end

function run(tasks, ctx)
  local failed = {}
  for _, t in ipairs(tasks) do
    if t.module == "broken" then
      table.insert(failed, t.id)
    else
      ctx.generated("/out", t.id .. ".bin")
    end
  end
  ptask.info("ran", #tasks, "tasks for", ctx.session_id)
  return { errors = #failed > 0, failed = failed }
end
`

func newRunner(t *testing.T, source string, opts ...Option) *Runner {
	t.Helper()
	r, err := New("test", source, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func run(t *testing.T, r *Runner, ctx context.Context, tc *projecttask.TaskContext, tasks ...projecttask.Task) (*projecttask.Result, error) {
	t.Helper()
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Run(ctx, tc, tasks).Wait(waitCtx)
}

func TestNew(t *testing.T) {
	t.Run("Should reject a script without run", func(t *testing.T) {
		_, err := New("x", `function can_run(t) return true end`)
		assert.ErrorIs(t, err, ErrNoRunFunction)
	})

	t.Run("Should reject invalid Lua", func(t *testing.T) {
		_, err := New("x", `function run(`)
		assert.Error(t, err)
	})

	t.Run("Should not expose unsafe libraries", func(t *testing.T) {
		r := newRunner(t, `
function run(tasks, ctx)
  return os == nil and io == nil and require == nil and load == nil and dofile == nil
end`)
		res, err := run(t, r, context.Background(), projecttask.NewTaskContext(), projecttask.NewEmptyTask("a"))
		require.NoError(t, err)
		assert.True(t, res.Succeeded())
	})

	t.Run("Should load a script file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "builder.lua")
		require.NoError(t, os.WriteFile(path, []byte(buildScript), 0o644))

		r, err := Load(path)
		require.NoError(t, err)
		defer r.Close()
		assert.Equal(t, "builder", r.Name())
	})
}

func TestRunner_CanRun(t *testing.T) {
	r := newRunner(t, buildScript)

	ok, err := r.CanRun(nil, projecttask.NewModuleBuildTask("core", true))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanRun(nil, process.NewCommandTask("lua:gen", "true"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanRun(nil, projecttask.NewFilesBuildTask("a.go"))
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("Should surface can_run errors", func(t *testing.T) {
		r := newRunner(t, `function can_run(t) error("nope") end
function run() end`)
		_, err := r.CanRun(nil, projecttask.NewEmptyTask("a"))
		assert.Error(t, err)
	})

	t.Run("Should claim nothing without can_run", func(t *testing.T) {
		r := newRunner(t, `function run() end`)
		ok, err := r.CanRun(nil, projecttask.NewEmptyTask("a"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRunner_Run(t *testing.T) {
	t.Run("Should report per-task failures and generated files", func(t *testing.T) {
		r := newRunner(t, buildScript)
		tc := projecttask.NewTaskContext(projecttask.WithGeneratedFilesCollection())

		res, err := run(t, r, context.Background(), tc,
			projecttask.NewModuleBuildTask("core", true),
			projecttask.NewModuleBuildTask("broken", true),
		)

		require.NoError(t, err)
		assert.True(t, res.HasErrors)
		assert.Equal(t, projecttask.TaskSucceeded, res.States["build:core"])
		assert.Equal(t, projecttask.TaskFailed, res.States["build:broken"])
		assert.Equal(t, map[string][]string{"/out": {"build:core.bin"}}, tc.GeneratedFiles())
	})

	t.Run("Should map return values to outcomes", func(t *testing.T) {
		cases := map[string]func(*projecttask.Result){
			`return`:           func(r *projecttask.Result) { assert.True(t, r.Succeeded()) },
			`return true`:      func(r *projecttask.Result) { assert.True(t, r.Succeeded()) },
			`return false`:     func(r *projecttask.Result) { assert.True(t, r.HasErrors) },
			`return "ok"`:      func(r *projecttask.Result) { assert.True(t, r.Succeeded()) },
			`return "aborted"`: func(r *projecttask.Result) { assert.True(t, r.Aborted) },
			`return "broken"`:  func(r *projecttask.Result) { assert.True(t, r.HasErrors) },
			`return {aborted = true}`: func(r *projecttask.Result) {
				assert.True(t, r.Aborted)
				assert.Equal(t, projecttask.TaskSkipped, r.States["a"])
			},
		}
		for body, check := range cases {
			t.Run("Should handle "+body, func(t *testing.T) {
				r := newRunner(t, "function run(tasks, ctx)\n"+body+"\nend")
				res, err := run(t, r, context.Background(), projecttask.NewTaskContext(), projecttask.NewEmptyTask("a"))
				require.NoError(t, err)
				check(res)
			})
		}
	})

	t.Run("Should reject the batch on a Lua error", func(t *testing.T) {
		r := newRunner(t, `function run(tasks, ctx) error("compiler crashed") end`)

		_, err := run(t, r, context.Background(), projecttask.NewTaskContext(), projecttask.NewEmptyTask("a"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "compiler crashed")
	})

	t.Run("Should abort a script interrupted by cancellation", func(t *testing.T) {
		r := newRunner(t, `function run(tasks, ctx) while true do end end`)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		res, err := run(t, r, ctx, projecttask.NewTaskContext(), projecttask.NewEmptyTask("a"))

		require.NoError(t, err)
		assert.True(t, res.Aborted)
	})

	t.Run("Should fail a script exceeding its timeout", func(t *testing.T) {
		r := newRunner(t, `function run(tasks, ctx) while true do end end`, WithTimeout(50*time.Millisecond))

		_, err := run(t, r, context.Background(), projecttask.NewTaskContext(), projecttask.NewEmptyTask("a"))

		assert.Error(t, err)
	})

	t.Run("Should fail after Close", func(t *testing.T) {
		r, err := New("closed", `function run() end`)
		require.NoError(t, err)
		r.Close()

		_, err = run(t, r, context.Background(), projecttask.NewTaskContext(), projecttask.NewEmptyTask("a"))
		assert.ErrorIs(t, err, ErrClosed)
	})
}
