// Package transport defines the remote worker endpoint used by the
// dispatcher. Implementations are selected at construction time.
package transport

import (
	"context"
	"errors"

	"github.com/viant/cascade/model/job"
)

var (
	// ErrUnreachable is returned when a node cannot be contacted
	ErrUnreachable = errors.New("transport: node unreachable")
	// ErrClosed is returned by a client used after Close
	ErrClosed = errors.New("transport: client closed")
)

// Transport opens clients to resource nodes
type Transport interface {
	Connect(ctx context.Context, node *job.ResourceNode) (Client, error)
}

// Client talks to one resource node. A client is owned by a single caller
// and must be closed once the call completes.
type Client interface {
	// IsAlive probes the node
	IsAlive(ctx context.Context) bool

	// Execute runs the job and blocks until it finishes; false means the
	// job reported failure.
	Execute(ctx context.Context, spec *job.Spec) (bool, error)

	// Kill stops a running job; false means nothing was killed.
	Kill(ctx context.Context, jobID string) (bool, error)

	Close() error
}
