// Package processor models workflow processor trees: composite workflow
// nodes (sequential, parallel or condition groups) and leaf task nodes that
// map to executable jobs.
package processor

import (
	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/runtime/execution"
)

// Kind identifies processor node type
type Kind string

const (
	// KindSequential runs children one after another
	KindSequential Kind = "sequential"
	// KindParallel exposes all children at once
	KindParallel Kind = "parallel"
	// KindConditions groups condition tasks guarding another node
	KindConditions Kind = "conditions"
	// KindTask is a directly executable leaf
	KindTask Kind = "task"
)

// IsComposite returns true for kinds that own children
func (k Kind) IsComposite() bool {
	return k == KindSequential || k == KindParallel || k == KindConditions
}

// Processor represents a node of a workflow processor tree
type Processor struct {
	Kind            Kind              `json:"kind" yaml:"kind"`
	InstanceID      string            `json:"instanceId" yaml:"instanceId"`
	ModelID         string            `json:"modelId" yaml:"modelId"`
	Name            string            `json:"name,omitempty" yaml:"name,omitempty"`
	Priority        float64           `json:"priority,omitempty" yaml:"priority,omitempty"`
	DynamicMetadata metadata.Metadata `json:"dynamicMetadata,omitempty" yaml:"dynamicMetadata,omitempty"`
	StaticMetadata  metadata.Metadata `json:"staticMetadata,omitempty" yaml:"staticMetadata,omitempty"`
	State           execution.State   `json:"state" yaml:"state"`
	Previous        *execution.State  `json:"previous,omitempty" yaml:"previous,omitempty"`
	JobInstance     string            `json:"jobInstance,omitempty" yaml:"jobInstance,omitempty"`
	Load            int               `json:"load,omitempty" yaml:"load,omitempty"`
	JobID           string            `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	Children        []*Processor      `json:"children,omitempty" yaml:"children,omitempty"`
	PreConditions   *Processor        `json:"preConditions,omitempty" yaml:"preConditions,omitempty"`
	parent          *Processor
}

func newNode(kind Kind, modelID, name string) *Processor {
	return &Processor{
		Kind:            kind,
		ModelID:         modelID,
		Name:            name,
		DynamicMetadata: metadata.Metadata{},
		StaticMetadata:  metadata.Metadata{},
	}
}

// NewWorkflow creates a sequential root workflow bound to instanceID
func NewWorkflow(instanceID, modelID, name string, children ...*Processor) *Processor {
	ret := newNode(KindSequential, modelID, name)
	ret.InstanceID = instanceID
	return ret.Add(children...)
}

// NewSequential creates a sequential composite
func NewSequential(modelID, name string, children ...*Processor) *Processor {
	return newNode(KindSequential, modelID, name).Add(children...)
}

// NewParallel creates a parallel composite
func NewParallel(modelID, name string, children ...*Processor) *Processor {
	return newNode(KindParallel, modelID, name).Add(children...)
}

// NewConditions creates a condition group
func NewConditions(modelID, name string, conditions ...*Processor) *Processor {
	return newNode(KindConditions, modelID, name).Add(conditions...)
}

// NewTask creates a leaf task executing jobInstance
func NewTask(modelID, name, jobInstance string) *Processor {
	ret := newNode(KindTask, modelID, name)
	ret.JobInstance = jobInstance
	ret.Load = 1
	return ret
}

// Add appends children, linking them and propagating the instance id
func (p *Processor) Add(children ...*Processor) *Processor {
	for _, child := range children {
		if child == nil {
			continue
		}
		child.parent = p
		if p.InstanceID != "" {
			child.setInstanceID(p.InstanceID)
		}
		p.Children = append(p.Children, child)
	}
	return p
}

// WithPreConditions guards the node with a condition group
func (p *Processor) WithPreConditions(conditions *Processor) *Processor {
	if conditions == nil {
		p.PreConditions = nil
		return p
	}
	conditions.parent = p
	if p.InstanceID != "" {
		conditions.setInstanceID(p.InstanceID)
	}
	p.PreConditions = conditions
	return p
}

// WithPriority sets node priority
func (p *Processor) WithPriority(priority float64) *Processor {
	p.Priority = priority
	return p
}

// WithLoad sets task load
func (p *Processor) WithLoad(load int) *Processor {
	p.Load = load
	return p
}

// WithStaticMetadata adds static metadata values
func (p *Processor) WithStaticMetadata(key string, values ...string) *Processor {
	if p.StaticMetadata == nil {
		p.StaticMetadata = metadata.Metadata{}
	}
	p.StaticMetadata.Add(key, values...)
	return p
}

func (p *Processor) setInstanceID(instanceID string) {
	p.walk(func(node *Processor) bool {
		node.InstanceID = instanceID
		return true
	})
}

// Parent returns parent node, nil for root
func (p *Processor) Parent() *Processor {
	return p.parent
}

// Root returns the top of the tree
func (p *Processor) Root() *Processor {
	ret := p
	for ret.parent != nil {
		ret = ret.parent
	}
	return ret
}

// IsTask returns true for leaf tasks
func (p *Processor) IsTask() bool {
	return p.Kind == KindTask
}

// IsRoot returns true if the node has no parent
func (p *Processor) IsRoot() bool {
	return p.parent == nil
}

// Link rebuilds parent references, typically after decoding.
func (p *Processor) Link() {
	for _, child := range p.Children {
		if child == nil {
			continue
		}
		child.parent = p
		child.Link()
	}
	if p.PreConditions != nil {
		p.PreConditions.parent = p
		p.PreConditions.Link()
	}
}

// Walk visits every node depth first, including precondition groups
func (p *Processor) Walk(visit func(node *Processor)) {
	p.walk(func(node *Processor) bool {
		visit(node)
		return true
	})
}

func (p *Processor) walk(visit func(node *Processor) bool) bool {
	if !visit(p) {
		return false
	}
	if p.PreConditions != nil && !p.PreConditions.walk(visit) {
		return false
	}
	for _, child := range p.Children {
		if child == nil {
			continue
		}
		if !child.walk(visit) {
			return false
		}
	}
	return true
}

// Find returns the node with modelID or nil
func (p *Processor) Find(modelID string) *Processor {
	var ret *Processor
	p.walk(func(node *Processor) bool {
		if node.ModelID == modelID {
			ret = node
			return false
		}
		return true
	})
	return ret
}

// Leaves returns all task nodes, condition tasks included
func (p *Processor) Leaves() []*Processor {
	var ret []*Processor
	p.Walk(func(node *Processor) {
		if node.IsTask() {
			ret = append(ret, node)
		}
	})
	return ret
}

// SetState applies state; a revertable state captures the current one first.
func (p *Processor) SetState(state execution.State) {
	if state.Revertable {
		prev := p.State
		p.Previous = &prev
	}
	p.State = state
}

// Revert restores the captured previous state
func (p *Processor) Revert() bool {
	if p.Previous == nil {
		return false
	}
	p.State = *p.Previous
	p.Previous = nil
	return true
}

// SetStateRecursive applies state to the node and all descendants
func (p *Processor) SetStateRecursive(state execution.State) {
	p.Walk(func(node *Processor) {
		node.SetState(state)
	})
}

// RevertRecursive restores previous states of the node and all descendants
func (p *Processor) RevertRecursive() bool {
	reverted := false
	p.Walk(func(node *Processor) {
		if node.Revert() {
			reverted = true
		}
	})
	return reverted
}

// SetPriorityRecursive applies priority to the node and all descendants
func (p *Processor) SetPriorityRecursive(priority float64) {
	p.Walk(func(node *Processor) {
		node.Priority = priority
	})
}

// Clone returns a deep, linked copy of the subtree
func (p *Processor) Clone() *Processor {
	if p == nil {
		return nil
	}
	ret := *p
	ret.parent = nil
	ret.DynamicMetadata = p.DynamicMetadata.Clone()
	ret.StaticMetadata = p.StaticMetadata.Clone()
	if p.Previous != nil {
		prev := *p.Previous
		ret.Previous = &prev
	}
	ret.Children = nil
	if len(p.Children) > 0 {
		ret.Children = make([]*Processor, 0, len(p.Children))
		for _, child := range p.Children {
			cloned := child.Clone()
			if cloned != nil {
				cloned.parent = &ret
			}
			ret.Children = append(ret.Children, cloned)
		}
	}
	if p.PreConditions != nil {
		ret.PreConditions = p.PreConditions.Clone()
		ret.PreConditions.parent = &ret
	}
	return &ret
}
