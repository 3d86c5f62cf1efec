package queue

import "errors"

var (
	// ErrNotFound is returned for unknown instance or model ids
	ErrNotFound = errors.New("queue: not found")

	// ErrInvalidTree is returned when enqueuing a nil tree or one without instance id
	ErrInvalidTree = errors.New("queue: invalid tree")

	// ErrExecuting is returned when changing priority of in-flight work
	ErrExecuting = errors.New("queue: task is executing")

	// ErrNoPreviousState is returned when there is nothing to revert to
	ErrNoPreviousState = errors.New("queue: no previous state")

	// ErrNotInUse is returned when caching a processor that was not uncached
	ErrNotInUse = errors.New("queue: processor not in use")

	// ErrShutdownTimeout is returned when the promotion loop did not stop in time
	ErrShutdownTimeout = errors.New("queue: shutdown timed out")
)
