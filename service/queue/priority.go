package queue

import (
	"fmt"
	"sort"

	"github.com/viant/cascade/model/processor"
)

const (
	PriorityHighest = "highest"
	PriorityFIFO    = "fifo"
)

// PriorityManager orders runnable stubs in place
type PriorityManager interface {
	Name() string
	Sort(stubs []*processor.Stub)
}

// HighestPriorityFirst orders by descending priority, then by enqueue time
type HighestPriorityFirst struct{}

func (HighestPriorityFirst) Name() string { return PriorityHighest }

func (HighestPriorityFirst) Sort(stubs []*processor.Stub) {
	sort.SliceStable(stubs, func(i, j int) bool {
		if stubs[i].Priority != stubs[j].Priority {
			return stubs[i].Priority > stubs[j].Priority
		}
		return stubs[i].EnqueuedAt.Before(stubs[j].EnqueuedAt)
	})
}

// FIFO orders by enqueue time only
type FIFO struct{}

func (FIFO) Name() string { return PriorityFIFO }

func (FIFO) Sort(stubs []*processor.Stub) {
	sort.SliceStable(stubs, func(i, j int) bool {
		return stubs[i].EnqueuedAt.Before(stubs[j].EnqueuedAt)
	})
}

// NewPriorityManager returns the priority manager registered under name;
// empty name selects HighestPriorityFirst.
func NewPriorityManager(name string) (PriorityManager, error) {
	switch name {
	case "", PriorityHighest:
		return HighestPriorityFirst{}, nil
	case PriorityFIFO:
		return FIFO{}, nil
	}
	return nil, fmt.Errorf("queue: unsupported priority %q", name)
}
