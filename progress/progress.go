// Package progress summarises task states of a workflow tree. Counters are
// computed from a tree snapshot, so a Progress value never changes after it
// was taken.
package progress

import (
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/runtime/execution"
)

// Progress keeps per category task counters of one workflow instance
type Progress struct {
	InstanceID string
	Workflow   string
	State      execution.State

	TotalTasks     int
	QueuedTasks    int
	WaitingTasks   int
	RunningTasks   int
	HoldingTasks   int
	SucceededTasks int
	FailedTasks    int
	KilledTasks    int
}

// Of counts task leaves of tree by state; composite nodes are not counted.
func Of(tree *processor.Processor) Progress {
	if tree == nil {
		return Progress{}
	}
	ret := Progress{InstanceID: tree.InstanceID, Workflow: tree.Name, State: tree.State}
	tree.Walk(func(node *processor.Processor) {
		if !node.IsTask() {
			return
		}
		ret.TotalTasks++
		switch node.State.Category {
		case execution.CategoryQueued, "":
			ret.QueuedTasks++
		case execution.CategoryWaitingOnResources:
			ret.WaitingTasks++
		case execution.CategoryExecuting:
			ret.RunningTasks++
		case execution.CategoryHolding:
			ret.HoldingTasks++
		case execution.CategoryDone:
			switch {
			case node.State.Is(execution.StateSuccess):
				ret.SucceededTasks++
			case node.State.Is(execution.StateKilled):
				ret.KilledTasks++
			default:
				ret.FailedTasks++
			}
		}
	})
	return ret
}

// Finished returns the number of tasks in a final state
func (p Progress) Finished() int {
	return p.SucceededTasks + p.FailedTasks + p.KilledTasks
}

// Ratio returns the finished fraction in [0, 1]
func (p Progress) Ratio() float64 {
	if p.TotalTasks == 0 {
		return 0
	}
	return float64(p.Finished()) / float64(p.TotalTasks)
}

// Done returns true once the workflow reached a terminal state
func (p Progress) Done() bool {
	return p.State.Category == execution.CategoryDone
}
