package processor

import "github.com/viant/cascade/runtime/execution"

// Succeeded returns true when every task in the subtree, preconditions
// included, reached the success state.
func (p *Processor) Succeeded() bool {
	if p.PreConditions != nil && !p.PreConditions.Succeeded() {
		return false
	}
	if p.IsTask() {
		return p.State.IsSuccess()
	}
	for _, child := range p.Children {
		if child != nil && !child.Succeeded() {
			return false
		}
	}
	return true
}

// Runnable returns task leaves newly eligible for dispatch. A leaf is
// eligible when it is queued (or has no state), all of its precursors in
// sequential ancestors succeeded and its precondition group succeeded. While
// preconditions are pending only their own eligible leaves are returned.
func (p *Processor) Runnable() []*Processor {
	var ret []*Processor
	p.collectRunnable(&ret)
	return ret
}

func (p *Processor) collectRunnable(out *[]*Processor) {
	if p.PreConditions != nil && !p.PreConditions.Succeeded() {
		p.PreConditions.collectRunnable(out)
		return
	}
	if p.State.Category == execution.CategoryHolding {
		return
	}
	switch p.Kind {
	case KindTask:
		if p.State.IsZero() || p.State.Category == execution.CategoryQueued {
			*out = append(*out, p)
		}
	case KindSequential:
		for _, child := range p.Children {
			if child == nil || child.Succeeded() {
				continue
			}
			child.collectRunnable(out)
			return
		}
	default:
		for _, child := range p.Children {
			if child != nil {
				child.collectRunnable(out)
			}
		}
	}
}

// Aggregate derives the workflow level state from task leaves. A holding
// state is kept as is.
func (p *Processor) Aggregate() execution.State {
	if p.State.Category == execution.CategoryHolding {
		return p.State
	}
	leaves := p.Leaves()
	var succeeded, failed, active, started int
	for _, leaf := range leaves {
		switch leaf.State.Category {
		case execution.CategoryDone:
			started++
			if leaf.State.IsSuccess() {
				succeeded++
			} else {
				failed++
			}
		case execution.CategoryWaitingOnResources, execution.CategoryExecuting:
			started++
			active++
		case execution.CategoryHolding:
			started++
		}
	}
	switch {
	case len(leaves) > 0 && succeeded == len(leaves):
		return execution.StateSuccess
	case failed > 0 && active == 0:
		return execution.StateFailure
	case started > 0:
		return execution.StateExecuting
	default:
		return execution.StateQueued
	}
}
