// Package uiloop provides the interactive loop: a single goroutine that
// runs user-facing work in order, and the context marker the task engine
// uses to recognise calls made from it.
//
// Go has no goroutine identity, so "running on the interactive thread" is
// expressed through the context handed to each call: functions executed
// by a Loop receive a context for which IsInteractive reports true.
package uiloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrLoopClosed is returned when calling into a closed loop.
var ErrLoopClosed = errors.New("interactive loop is closed")

// ErrQueueFull is returned by Post when the loop cannot buffer more calls.
var ErrQueueFull = errors.New("interactive loop queue is full")

type interactiveKey struct{}

// WithInteractive marks ctx as belonging to the interactive loop.
func WithInteractive(ctx context.Context) context.Context {
	return context.WithValue(ctx, interactiveKey{}, true)
}

// Detach returns a context that keeps ctx's values, deadline and
// cancellation but is no longer marked interactive.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, interactiveKey{}, false)
}

// IsInteractive reports whether ctx was handed out by the interactive loop.
func IsInteractive(ctx context.Context) bool {
	v, _ := ctx.Value(interactiveKey{}).(bool)
	return v
}

type call struct {
	ctx    context.Context
	fn     func(ctx context.Context)
	result chan error
}

// Loop serializes calls through one goroutine.
//
//	loop := uiloop.New(64)
//	go loop.Run(ctx)
//	defer loop.Close()
//
//	loop.Invoke(ctx, func(ctx context.Context) {
//	    // uiloop.IsInteractive(ctx) == true here
//	})
type Loop struct {
	queue     chan *call
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a loop buffering up to queueSize pending calls.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Loop{
		queue: make(chan *call, queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes calls until ctx is done or Close is called. It must be
// called exactly once, from the goroutine that becomes the interactive one.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.drain(ctx.Err())
			return
		case <-l.done:
			l.drain(ErrLoopClosed)
			return
		case c := <-l.queue:
			c.result <- l.execute(c)
			close(c.result)
		}
	}
}

func (l *Loop) execute(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interactive call panicked: %v", r)
		}
	}()
	c.fn(WithInteractive(c.ctx))
	return nil
}

func (l *Loop) drain(err error) {
	for {
		select {
		case c := <-l.queue:
			c.result <- err
			close(c.result)
		default:
			return
		}
	}
}

// Invoke runs fn on the loop and waits for it to return.
func (l *Loop) Invoke(ctx context.Context, fn func(ctx context.Context)) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	c := &call{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	case l.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.result:
		return err
	}
}

// Post queues fn without waiting for it.
func (l *Loop) Post(ctx context.Context, fn func(ctx context.Context)) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	c := &call{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case <-l.done:
		return ErrLoopClosed
	case l.queue <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the loop. Pending calls fail with ErrLoopClosed.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}
