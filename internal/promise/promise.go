// Package promise provides a single-resolution future used to hand the
// outcome of asynchronous work back to callers.
//
// A Promise is resolved or rejected exactly once. Callers may register
// callbacks with Then, select on Done, or block with Wait, WaitTimeout
// or the polling helper Await.
package promise

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by WaitTimeout when the promise did not settle in time.
var ErrTimeout = errors.New("promise: wait timed out")

// ErrCanceled is returned by Await when the cancellation check fires.
var ErrCanceled = errors.New("promise: wait canceled")

// Promise is a single-assignment container for a value or an error.
type Promise[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
}

// New creates an unresolved promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved creates a promise already resolved with v.
func Resolved[T any](v T) *Promise[T] {
	p := New[T]()
	p.Resolve(v)
	return p
}

// Rejected creates a promise already rejected with err.
func Rejected[T any](err error) *Promise[T] {
	p := New[T]()
	p.Reject(err)
	return p
}

// Resolve settles the promise with v. It reports false if the promise was
// already settled, in which case v is discarded.
func (p *Promise[T]) Resolve(v T) bool {
	return p.settle(v, nil)
}

// Reject settles the promise with err. It reports false if the promise was
// already settled.
func (p *Promise[T]) Reject(err error) bool {
	var zero T
	return p.settle(zero, err)
}

func (p *Promise[T]) settle(v T, err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.value = v
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// Then registers fn to run once the promise settles. If it already has,
// fn runs immediately on the calling goroutine; otherwise it runs on the
// goroutine that settles the promise.
func (p *Promise[T]) Then(fn func(T, error)) {
	p.mu.Lock()
	if !p.settled {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()
	fn(v, err)
}

// Done returns a channel that is closed when the promise settles.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// IsDone reports whether the promise has settled.
func (p *Promise[T]) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Result returns the settled value and error. ok is false while the
// promise is still pending.
func (p *Promise[T]) Result() (v T, err error, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.settled {
		return v, nil, false
	}
	return p.value, p.err, true
}

// Wait blocks until the promise settles or ctx is done.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		v, err, _ := p.Result()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitTimeout blocks for at most d. It returns ErrTimeout if the promise is
// still pending afterwards.
func (p *Promise[T]) WaitTimeout(d time.Duration) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.done:
		v, err, _ := p.Result()
		return v, err
	case <-timer.C:
		var zero T
		return zero, ErrTimeout
	}
}

// Await blocks until p settles, polling with a fixed interval and calling
// canceled between polls. It returns ErrCanceled as soon as canceled
// reports true. There is no overall deadline.
func Await[T any](p *Promise[T], poll time.Duration, canceled func() bool) (T, error) {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			v, err, _ := p.Result()
			return v, err
		case <-ticker.C:
			if canceled != nil && canceled() {
				var zero T
				return zero, ErrCanceled
			}
		}
	}
}
