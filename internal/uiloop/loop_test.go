package uiloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextMarker(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsInteractive(ctx))

	ui := WithInteractive(ctx)
	assert.True(t, IsInteractive(ui))
	assert.False(t, IsInteractive(Detach(ui)))
}

func TestLoop_InvokeRunsInteractive(t *testing.T) {
	loop := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer loop.Close()

	var interactive bool
	err := loop.Invoke(context.Background(), func(ctx context.Context) {
		interactive = IsInteractive(ctx)
	})
	require.NoError(t, err)
	assert.True(t, interactive)
}

func TestLoop_CallsRunInOrder(t *testing.T) {
	loop := New(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer loop.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, loop.Post(context.Background(), func(context.Context) {
			order = append(order, i)
		}))
	}
	require.NoError(t, loop.Invoke(context.Background(), func(context.Context) {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLoop_PanicBecomesError(t *testing.T) {
	loop := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer loop.Close()

	err := loop.Invoke(context.Background(), func(context.Context) { panic("bad") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestLoop_Closed(t *testing.T) {
	loop := New(1)
	loop.Close()

	assert.ErrorIs(t, loop.Invoke(context.Background(), func(context.Context) {}), ErrLoopClosed)
	assert.ErrorIs(t, loop.Post(context.Background(), func(context.Context) {}), ErrLoopClosed)
}

func TestLoop_InvokeContextCanceled(t *testing.T) {
	loop := New(1) // never started
	defer loop.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, loop.Post(context.Background(), func(context.Context) {}))

	err := loop.Invoke(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
