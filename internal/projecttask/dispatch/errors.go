package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrRunnerExists is returned when registering a runner whose name is taken.
	ErrRunnerExists = errors.New("runner already registered")

	// ErrInvalidRunner is returned when registering a nil or unnamed runner.
	ErrInvalidRunner = errors.New("runner must be non-nil and named")
)
