// Package processor defines persistence of workflow processor trees.
package processor

import (
	"context"

	"github.com/viant/cascade/model/processor"
)

// Repository persists whole processor trees keyed by instance id.
// Implementations must support concurrent Load calls for different ids.
type Repository interface {
	Store(ctx context.Context, tree *processor.Processor) error

	Load(ctx context.Context, instanceID string) (*processor.Processor, error)

	Delete(ctx context.Context, instanceID string) error

	InstanceIDs(ctx context.Context) ([]string, error)
}
