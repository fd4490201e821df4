package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/projecttask/dispatch"
	"github.com/dshills/projecttask/internal/projecttask/hook"
	"github.com/dshills/projecttask/internal/promise"
)

var errNilResult = errors.New("runner resolved without a result")

// run is the state of one Manager.Run call.
type run struct {
	m   *Manager
	ctx context.Context
	tc  *projecttask.TaskContext
	log logging.Logger
	out *promise.Promise[*projecttask.Result]
	agg *aggregator

	waves   [][]projecttask.Task
	next    int
	started time.Time

	completeOnce sync.Once
}

// advance dispatches the next non-empty wave, or completes the run when
// there is none left or the run was aborted.
func (r *run) advance() {
	for {
		if r.agg.aborted.Load() || r.next >= len(r.waves) {
			r.complete()
			return
		}
		if err := r.ctx.Err(); err != nil {
			r.log.Info("task run canceled", "error", err)
			r.agg.abort()
			r.complete()
			return
		}

		wave := r.waves[r.next]
		r.next++

		batches, err := dispatch.SelectRunners(r.ctx, r.m.registry, wave, r.tc, r.log)
		if err != nil {
			r.log.Info("task dispatch canceled", "error", err)
			r.agg.abort()
			r.complete()
			return
		}
		if len(batches) == 0 {
			continue
		}
		r.dispatch(batches)
		return
	}
}

// dispatch hands every batch of a wave to its runner. The next wave is
// started from the pool once the last batch of this one completes.
func (r *run) dispatch(batches []dispatch.Batch) {
	wave := newCountdown(len(batches), func() {
		r.m.pool.Go(context.WithoutCancel(r.ctx), func(context.Context) {
			r.advance()
		})
	})

	for _, b := range batches {
		r.m.stats.batches.Add(1)
		r.m.stats.tasks.Add(uint64(len(b.Tasks)))
		r.log.Debug("dispatching batch", "runner", b.Runner.Name(), "tasks", len(b.Tasks))

		r.invoke(b).Then(func(res *projecttask.Result, err error) {
			r.record(b, res, err)
			wave.tick()
		})
	}
}

// invoke starts one batch. Empty batches succeed without calling the
// runner; a runner that panics yields a rejected promise.
func (r *run) invoke(b dispatch.Batch) (p *promise.Promise[*projecttask.Result]) {
	if len(b.Tasks) == 0 {
		return promise.Resolved(projecttask.SuccessResult())
	}
	defer func() {
		if rec := recover(); rec != nil {
			p = promise.Rejected[*projecttask.Result](fmt.Errorf("runner %s panicked: %v", b.Runner.Name(), rec))
		}
	}()
	p = b.Runner.Run(r.ctx, r.tc, b.Tasks)
	if p == nil {
		p = promise.Rejected[*projecttask.Result](errNilResult)
	}
	return p
}

func (r *run) record(b dispatch.Batch, res *projecttask.Result, err error) {
	if err == nil && res == nil {
		err = errNilResult
	}
	switch {
	case err != nil && projecttask.IsCanceled(err):
		r.log.Info("batch canceled", "runner", b.Runner.Name(), "error", err)
		res = projecttask.AbortedResult()
	case err != nil:
		r.log.Error("batch failed", "runner", b.Runner.Name(), "error", err)
		res = projecttask.ErrorResult()
	}
	r.agg.record(b.Tasks, res)
}

// complete builds the final result. A clean run goes through the after-run
// listeners on the pool before it is published.
func (r *run) complete() {
	r.completeOnce.Do(func() {
		result := r.agg.result(r.tc)
		if !result.Succeeded() {
			r.finish(result)
			return
		}
		r.m.pool.Go(context.WithoutCancel(r.ctx), func(context.Context) {
			if err := hook.RunAfter(result, r.log, r.m.listeners, r.m.extensions); err != nil {
				result = result.WithErrors()
			}
			r.finish(result)
		})
	})
}

func (r *run) finish(result *projecttask.Result) {
	switch {
	case result.Aborted:
		r.m.stats.aborted.Add(1)
	case result.HasErrors:
		r.m.stats.failed.Add(1)
	}
	hook.NotifyFinished(result, r.log, r.m.listeners, r.m.extensions)

	r.log.Info("task run finished",
		"aborted", result.Aborted,
		"errors", result.HasErrors,
		"tasks", len(result.States),
		"duration", time.Since(r.started))
	r.out.Resolve(result)
}
