package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projecttask/internal/projecttask"
)

func claimPrefix(name, prefix string, probes *atomic.Int32) *projecttask.RunnerFuncs {
	return &projecttask.RunnerFuncs{
		RunnerName: name,
		CanRunFn: func(_ *projecttask.TaskContext, task projecttask.Task) (bool, error) {
			if probes != nil {
				probes.Add(1)
			}
			return len(task.ID()) >= len(prefix) && string(task.ID())[:len(prefix)] == prefix, nil
		},
	}
}

func tasks(ids ...string) []projecttask.Task {
	out := make([]projecttask.Task, len(ids))
	for i, id := range ids {
		out[i] = projecttask.NewBaseTask(projecttask.TaskID(id), "")
	}
	return out
}

func batchIDs(b Batch) []projecttask.TaskID {
	ids := make([]projecttask.TaskID, len(b.Tasks))
	for i, task := range b.Tasks {
		ids[i] = task.ID()
	}
	return ids
}

func TestRegistry(t *testing.T) {
	t.Run("Should keep registration order", func(t *testing.T) {
		reg, err := NewRegistry(claimPrefix("a", "a", nil), claimPrefix("b", "b", nil))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, reg.Names())
		assert.Equal(t, 2, reg.Len())
	})

	t.Run("Should reject duplicates and reserved names", func(t *testing.T) {
		reg, err := NewRegistry(claimPrefix("a", "a", nil))
		require.NoError(t, err)
		assert.ErrorIs(t, reg.Register(claimPrefix("a", "x", nil)), ErrRunnerExists)
		assert.ErrorIs(t, reg.Register(claimPrefix(DummyRunnerName, "x", nil)), ErrRunnerExists)
		assert.ErrorIs(t, reg.Register(nil), ErrInvalidRunner)
		assert.ErrorIs(t, reg.Register(claimPrefix("", "x", nil)), ErrInvalidRunner)
	})

	t.Run("Should unregister by name", func(t *testing.T) {
		reg, err := NewRegistry(claimPrefix("a", "a", nil), claimPrefix("b", "b", nil))
		require.NoError(t, err)
		assert.True(t, reg.Unregister("a"))
		assert.False(t, reg.Unregister("a"))
		assert.Equal(t, []string{"b"}, reg.Names())
	})
}

func TestSelectRunners_SingleRunnerClaimsAll(t *testing.T) {
	reg, err := NewRegistry(claimPrefix("r1", "", nil))
	require.NoError(t, err)

	batches, err := SelectRunners(context.Background(), reg, tasks("A", "B", "C"), projecttask.NewTaskContext(), nil)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "r1", batches[0].Runner.Name())
	assert.Equal(t, []projecttask.TaskID{"A", "B", "C"}, batchIDs(batches[0]))
}

func TestSelectRunners_FirstMatchWins(t *testing.T) {
	var laterProbes atomic.Int32
	reg, err := NewRegistry(
		claimPrefix("go", "go:", nil),
		claimPrefix("any", "", &laterProbes),
	)
	require.NoError(t, err)

	batches, err := SelectRunners(context.Background(), reg, tasks("go:build", "npm:test", "go:vet"), projecttask.NewTaskContext(), nil)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "go", batches[0].Runner.Name())
	assert.Equal(t, []projecttask.TaskID{"go:build", "go:vet"}, batchIDs(batches[0]))
	assert.Equal(t, "any", batches[1].Runner.Name())
	assert.Equal(t, []projecttask.TaskID{"npm:test"}, batchIDs(batches[1]))
	assert.Equal(t, int32(1), laterProbes.Load())
}

func TestSelectRunners_UnclaimedGoToDummy(t *testing.T) {
	reg, err := NewRegistry(claimPrefix("go", "go:", nil))
	require.NoError(t, err)

	batches, err := SelectRunners(context.Background(), reg, tasks("go:a", "other"), projecttask.NewTaskContext(), nil)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, DummyRunnerName, batches[1].Runner.Name())
	assert.Equal(t, []projecttask.TaskID{"other"}, batchIDs(batches[1]))

	res, err := batches[1].Runner.Run(context.Background(), nil, batches[1].Tasks).Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
}

func TestSelectRunners_ProbeFailureFallsThrough(t *testing.T) {
	failing := &projecttask.RunnerFuncs{
		RunnerName: "failing",
		CanRunFn: func(*projecttask.TaskContext, projecttask.Task) (bool, error) {
			return false, errors.New("probe exploded")
		},
	}
	panicking := &projecttask.RunnerFuncs{
		RunnerName: "panicking",
		CanRunFn: func(*projecttask.TaskContext, projecttask.Task) (bool, error) {
			panic("nil map")
		},
	}
	reg, err := NewRegistry(failing, panicking)
	require.NoError(t, err)

	batches, err := SelectRunners(context.Background(), reg, tasks("F"), projecttask.NewTaskContext(), nil)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, DummyRunnerName, batches[0].Runner.Name())
}

func TestSelectRunners_CancellationAborts(t *testing.T) {
	t.Run("Should rethrow cancellation from a probe", func(t *testing.T) {
		canceling := &projecttask.RunnerFuncs{
			RunnerName: "canceling",
			CanRunFn: func(*projecttask.TaskContext, projecttask.Task) (bool, error) {
				return false, fmt.Errorf("indexing: %w", projecttask.ErrCanceled)
			},
		}
		reg, err := NewRegistry(canceling)
		require.NoError(t, err)

		batches, err := SelectRunners(context.Background(), reg, tasks("X"), projecttask.NewTaskContext(), nil)
		assert.ErrorIs(t, err, projecttask.ErrCanceled)
		assert.Nil(t, batches)
	})

	t.Run("Should rethrow a panicking cancellation", func(t *testing.T) {
		canceling := &projecttask.RunnerFuncs{
			RunnerName: "canceling",
			CanRunFn: func(*projecttask.TaskContext, projecttask.Task) (bool, error) {
				panic(projecttask.ErrCanceled)
			},
		}
		reg, err := NewRegistry(canceling)
		require.NoError(t, err)

		_, err = SelectRunners(context.Background(), reg, tasks("X"), projecttask.NewTaskContext(), nil)
		assert.ErrorIs(t, err, projecttask.ErrCanceled)
	})

	t.Run("Should stop when the context is done", func(t *testing.T) {
		reg, err := NewRegistry(claimPrefix("r", "", nil))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = SelectRunners(ctx, reg, tasks("X"), projecttask.NewTaskContext(), nil)
		assert.True(t, projecttask.IsCanceled(err))
	})
}

func TestSelectRunners_EmptyInput(t *testing.T) {
	batches, err := SelectRunners(context.Background(), nil, nil, projecttask.NewTaskContext(), nil)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
