package idgen

import "github.com/google/uuid"

// NewFunc generates a raw identifier. Override in tests for determinism.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }

// NewJobID returns a job identifier. The id is not derived from the task
// coordinates so that a re-run of the same task after a reset gets a fresh id.
func NewJobID() string {
	return "job-" + NewFunc()
}
