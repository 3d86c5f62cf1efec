// Package monitor tracks load assigned to resource nodes.
package monitor

import (
	"context"
	"errors"

	"github.com/viant/cascade/model/job"
)

var (
	// ErrUnknownNode is returned for nodes never registered
	ErrUnknownNode = errors.New("monitor: unknown node")
	// ErrNoCapacity is returned when no node can take the requested load
	ErrNoCapacity = errors.New("monitor: no node with spare capacity")
)

// Monitor releases node load once a job completes
type Monitor interface {
	ReduceLoad(ctx context.Context, node *job.ResourceNode, amount int) error
}

// Balancer extends Monitor with the bookkeeping a scheduler needs
type Balancer interface {
	Monitor
	AssignLoad(ctx context.Context, node *job.ResourceNode, amount int) error
	LeastLoaded(ctx context.Context, amount int, exclude ...string) (*job.ResourceNode, error)
	Nodes() []*job.ResourceNode
	Load(nodeID string) int
}
