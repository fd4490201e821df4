package dispatch

import (
	"fmt"
	"sync"

	"github.com/dshills/projecttask/internal/projecttask"
)

// Registry is an ordered set of runners. It is built once and injected
// into the manager; registration order decides which runner wins when
// several can run the same task.
type Registry struct {
	mu      sync.RWMutex
	runners []projecttask.Runner
}

// NewRegistry creates a registry holding runners in the given order.
func NewRegistry(runners ...projecttask.Runner) (*Registry, error) {
	r := &Registry{}
	for _, runner := range runners {
		if err := r.Register(runner); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends runner.
func (r *Registry) Register(runner projecttask.Runner) error {
	if runner == nil || runner.Name() == "" {
		return ErrInvalidRunner
	}

	if runner.Name() == DummyRunnerName {
		return fmt.Errorf("%w: %s is reserved", ErrRunnerExists, DummyRunnerName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.runners {
		if existing.Name() == runner.Name() {
			return fmt.Errorf("%w: %s", ErrRunnerExists, runner.Name())
		}
	}
	r.runners = append(r.runners, runner)
	return nil
}

// Unregister removes the runner with name. It reports whether one was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, runner := range r.runners {
		if runner.Name() == name {
			r.runners = append(r.runners[:i], r.runners[i+1:]...)
			return true
		}
	}
	return false
}

// Runners returns a snapshot of the runners in registration order.
func (r *Registry) Runners() []projecttask.Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projecttask.Runner, len(r.runners))
	copy(out, r.runners)
	return out
}

// Names returns the runner names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.runners))
	for i, runner := range r.runners {
		names[i] = runner.Name()
	}
	return names
}

// Len returns the number of registered runners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runners)
}
