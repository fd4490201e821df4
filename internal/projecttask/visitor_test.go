package projecttask

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(wave []Task) []TaskID {
	out := make([]TaskID, len(wave))
	for i, t := range wave {
		out[i] = t.ID()
	}
	return out
}

func allIDs(waves [][]Task) [][]TaskID {
	out := make([][]TaskID, len(waves))
	for i, w := range waves {
		out[i] = ids(w)
	}
	return out
}

func TestWaves_Independent(t *testing.T) {
	a, b, c := NewBaseTask("a", ""), NewBaseTask("b", ""), NewBaseTask("c", "")

	waves, err := Waves(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, [][]TaskID{{"a", "b", "c"}}, allIDs(waves))
}

func TestWaves_DependencyFirst(t *testing.T) {
	e := NewBaseTask("e", "")
	d := NewBaseTask("d", "").DependsOn(e)

	waves, err := Waves(d)
	require.NoError(t, err)
	assert.Equal(t, [][]TaskID{{"e"}, {"d"}}, allIDs(waves))
}

func TestWaves_SharedDependencyEmittedOnce(t *testing.T) {
	base := NewBaseTask("base", "")
	x := NewBaseTask("x", "").DependsOn(base)
	y := NewBaseTask("y", "").DependsOn(base)

	waves, err := Waves(x, y, base)
	require.NoError(t, err)
	assert.Equal(t, [][]TaskID{{"base"}, {"x", "y"}}, allIDs(waves))
}

func TestWaves_SiblingDependency(t *testing.T) {
	a := NewBaseTask("a", "")
	b := NewBaseTask("b", "").DependsOn(a)

	waves, err := Waves(a, b)
	require.NoError(t, err)
	assert.Equal(t, [][]TaskID{{"a"}, {"b"}}, allIDs(waves))
}

func TestWaves_NestedListsNeverEmitted(t *testing.T) {
	a, b, c := NewBaseTask("a", ""), NewBaseTask("b", ""), NewBaseTask("c", "")
	inner := NewNamedTaskList("inner", b, c)
	outer := NewNamedTaskList("outer", a, inner)

	waves, err := Waves(outer)
	require.NoError(t, err)

	var seen []TaskID
	for _, w := range waves {
		for _, task := range w {
			_, isList := task.(*TaskList)
			assert.False(t, isList, "list %s was emitted", task.ID())
			seen = append(seen, task.ID())
		}
	}
	assert.ElementsMatch(t, []TaskID{"a", "b", "c"}, seen)
}

func TestWaves_DependenciesBeforeDependents(t *testing.T) {
	// diamond: top -> (left, right) -> bottom, plus a list wrapper
	bottom := NewBaseTask("bottom", "")
	left := NewBaseTask("left", "").DependsOn(bottom)
	right := NewBaseTask("right", "").DependsOn(bottom)
	top := NewBaseTask("top", "").DependsOn(NewTaskList(left, right))
	other := NewBaseTask("other", "")

	waves, err := Waves(NewTaskList(top, other))
	require.NoError(t, err)

	waveOf := make(map[TaskID]int)
	for i, w := range waves {
		for _, task := range w {
			_, dup := waveOf[task.ID()]
			require.False(t, dup, "task %s emitted twice", task.ID())
			waveOf[task.ID()] = i
		}
	}
	assert.Len(t, waveOf, 5)
	assert.Less(t, waveOf["bottom"], waveOf["left"])
	assert.Less(t, waveOf["bottom"], waveOf["right"])
	assert.Less(t, waveOf["left"], waveOf["top"])
	assert.Less(t, waveOf["right"], waveOf["top"])
}

func TestWaves_Empty(t *testing.T) {
	waves, err := Waves()
	require.NoError(t, err)
	assert.Empty(t, waves)

	waves, err = Waves(NewNamedTaskList("empty"))
	require.NoError(t, err)
	assert.Empty(t, waves)
}

func TestWaves_Cycle(t *testing.T) {
	a := NewBaseTask("a", "")
	b := NewBaseTask("b", "").DependsOn(a)
	c := NewBaseTask("c", "").DependsOn(b)
	a.DependsOn(c)

	_, err := Waves(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDependencyCycle))

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []TaskID{"a", "c", "b", "a"}, cycle.Path)
	assert.Contains(t, err.Error(), "a -> c -> b -> a")
}

func TestWaves_SelfDependency(t *testing.T) {
	a := NewBaseTask("a", "")
	a.DependsOn(a)

	_, err := Waves(a)
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestVisit_CallbackErrorStops(t *testing.T) {
	e := NewBaseTask("e", "")
	d := NewBaseTask("d", "").DependsOn(e)
	stop := errors.New("stop")

	calls := 0
	err := Visit([]Task{d}, func([]Task) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWaves_ListsSharingAnID(t *testing.T) {
	a := NewBaseTask("a", "")
	c := NewBaseTask("c", "")
	b := NewBaseTask("b", "").DependsOn(c)

	first := NewTaskList(a)
	second := NewTaskList(a)
	second.Add(b)
	require.Equal(t, first.ID(), second.ID())

	waves, err := Waves(first, second)
	require.NoError(t, err)
	assert.Equal(t, [][]TaskID{{"a"}, {"c"}, {"b"}}, allIDs(waves))
}

func TestWaves_ListContainingItself(t *testing.T) {
	loop := NewNamedTaskList("loop", NewBaseTask("a", ""))
	loop.Add(loop)

	_, err := Waves(loop)
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []TaskID{"loop", "loop"}, cycle.Path)
}

func TestLeaves(t *testing.T) {
	t.Run("Should expand every list even when IDs repeat", func(t *testing.T) {
		a := NewBaseTask("a", "")
		c := NewBaseTask("c", "")
		b := NewBaseTask("b", "").DependsOn(c)
		first := NewTaskList(a)
		second := NewTaskList(a)
		second.Add(b)

		assert.Equal(t, []TaskID{"a", "c", "b"}, ids(Leaves(first, second)))
	})

	t.Run("Should stop at a list containing itself", func(t *testing.T) {
		loop := NewNamedTaskList("loop", NewBaseTask("a", ""))
		loop.Add(loop)

		assert.Equal(t, []TaskID{"a"}, ids(Leaves(loop)))
	})
}
