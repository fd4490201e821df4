// Package workpool runs jobs on a fixed set of background workers.
//
// The task engine uses it to move work off the interactive loop: run
// pipelines started from the interactive goroutine and after-run
// listeners are submitted here.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/projecttask/internal/logging"
)

// Sentinel errors for the workpool package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running pool.
	ErrAlreadyRunning = errors.New("work pool is already running")

	// ErrNotRunning is returned when jobs are submitted to a stopped pool.
	ErrNotRunning = errors.New("work pool is not running")

	// ErrQueueFull is returned when the queue cannot accept more jobs.
	ErrQueueFull = errors.New("work pool queue is full")
)

// Job is a unit of background work.
type Job func(ctx context.Context)

// PanicHandler is called when a job panics.
type PanicHandler func(recovered any, stack []byte)

// Pool executes jobs on a bounded number of worker goroutines.
type Pool struct {
	queueSize   int
	workerCount int
	log         logging.Logger

	mu      sync.Mutex // protects queue creation/destruction
	queue   chan queuedJob
	running atomic.Bool
	wg      sync.WaitGroup

	panicHandler PanicHandler

	submitted   atomic.Uint64
	completed   atomic.Uint64
	panicked    atomic.Uint64
	skipped     atomic.Uint64
	dropped     atomic.Uint64
	totalTimeNs atomic.Int64
}

type queuedJob struct {
	ctx context.Context
	job Job
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueueSize sets the job queue size.
func WithQueueSize(size int) Option {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of workers.
func WithWorkerCount(count int) Option {
	return func(p *Pool) {
		if count > 0 {
			p.workerCount = count
		}
	}
}

// WithPanicHandler sets the handler called when a job panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) {
		p.panicHandler = h
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pool) {
		p.log = logging.WithComponent(l, "workpool")
	}
}

// New creates a stopped pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		queueSize:   1024,
		workerCount: 4,
		log:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.panicHandler == nil {
		p.panicHandler = func(r any, stack []byte) {
			p.log.Error("job panicked", "panic", fmt.Sprint(r), "stack", string(stack))
		}
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}

	p.queue = make(chan queuedJob, p.queueSize)
	p.running.Store(true)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return nil
}

// Stop stops accepting jobs and waits for queued jobs to finish or for
// ctx to be done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues job for execution. It never blocks: a full queue yields
// ErrQueueFull.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		return ErrNotRunning
	}

	select {
	case p.queue <- queuedJob{ctx: ctx, job: job}:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Go submits job and falls back to a dedicated goroutine when the pool
// cannot take it. The job always runs exactly once.
func (p *Pool) Go(ctx context.Context, job Job) {
	if err := p.Submit(ctx, job); err != nil {
		p.log.Debug("running job on dedicated goroutine", "reason", err)
		go p.execute(queuedJob{ctx: ctx, job: job}, false)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.execute(j, true)
	}
}

func (p *Pool) execute(j queuedJob, skipIfDone bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			stack := debug.Stack()
			func() {
				defer func() { _ = recover() }()
				p.panicHandler(r, stack)
			}()
		}
		p.completed.Add(1)
		p.totalTimeNs.Add(time.Since(start).Nanoseconds())
	}()

	if skipIfDone && j.ctx.Err() != nil {
		p.skipped.Add(1)
		return
	}
	j.job(j.ctx)
}

// IsRunning reports whether the pool accepts jobs.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// QueueDepth returns the number of jobs waiting in the queue.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Load() {
		return 0
	}
	return len(p.queue)
}

// Stats contains pool statistics.
type Stats struct {
	Submitted     uint64
	Completed     uint64
	Panicked      uint64
	Skipped       uint64
	Dropped       uint64
	QueueDepth    int
	TotalDuration time.Duration
}

// Stats returns a snapshot of the pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted:     p.submitted.Load(),
		Completed:     p.completed.Load(),
		Panicked:      p.panicked.Load(),
		Skipped:       p.skipped.Load(),
		Dropped:       p.dropped.Load(),
		QueueDepth:    p.QueueDepth(),
		TotalDuration: time.Duration(p.totalTimeNs.Load()),
	}
}
