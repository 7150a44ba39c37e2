package coredispatch

import "errors"

// Error kinds returned by the public submission API and the
// Dispatcher's lifecycle operations.
var (
	// ErrInvalidQueueID is returned when a queue id falls outside the
	// configured range for its pool, or a sentinel is used somewhere
	// it is not valid (e.g. QueueIDAll or QueueIDSame passed to a
	// submission function).
	ErrInvalidQueueID = errors.New("coredispatch: invalid queue id")

	// ErrTerminated is returned by any submission attempted after
	// Terminate has been called.
	ErrTerminated = errors.New("coredispatch: dispatcher terminated")

	// ErrDraining is returned by any external submission attempted
	// while Drain is in progress.
	ErrDraining = errors.New("coredispatch: dispatcher draining")

	// ErrUnsupported is returned when a capability was not configured,
	// e.g. PostAsyncIO on a dispatcher built with zero I/O threads.
	ErrUnsupported = errors.New("coredispatch: unsupported operation")

	// ErrCancelled is the error published to a task's promise when the
	// dispatcher is terminated before that task completed.
	ErrCancelled = errors.New("coredispatch: task cancelled")
)
