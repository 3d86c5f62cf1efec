// Package job defines persistence of job specs.
package job

import (
	"context"

	"github.com/viant/cascade/model/job"
)

// Repository stores job specs keyed by job id
type Repository interface {
	// Job returns spec by id or dao.ErrNotFound
	Job(ctx context.Context, id string) (*job.Spec, error)

	// Add inserts or replaces a spec
	Add(ctx context.Context, spec *job.Spec) error

	// Update replaces an existing spec, dao.ErrNotFound otherwise
	Update(ctx context.Context, spec *job.Spec) error

	Delete(ctx context.Context, id string) error

	// List returns specs with any of statuses (all when empty), ordered by id
	List(ctx context.Context, statuses ...job.Status) ([]*job.Spec, error)
}
