package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/promise"
)

// WaitFor blocks until p resolves, polling with the manager's interval.
// It returns projecttask.ErrCanceled once ctx is done.
func (m *Manager) WaitFor(ctx context.Context, p *promise.Promise[*projecttask.Result]) (*projecttask.Result, error) {
	return Wait(ctx, p, m.pollInterval)
}

// Wait blocks until p resolves, checking ctx between polls.
func Wait(ctx context.Context, p *promise.Promise[*projecttask.Result], poll time.Duration) (*projecttask.Result, error) {
	res, err := promise.Await(p, poll, func() bool { return ctx.Err() != nil })
	if errors.Is(err, promise.ErrCanceled) {
		return nil, fmt.Errorf("%w: %w", projecttask.ErrCanceled, ctx.Err())
	}
	return res, err
}
