package processor

import (
	"time"

	"github.com/viant/cascade/runtime/execution"
)

// Stub is a cheap snapshot of a node's externally visible fields
type Stub struct {
	InstanceID string          `json:"instanceId"`
	ModelID    string          `json:"modelId"`
	Name       string          `json:"name,omitempty"`
	Kind       Kind            `json:"kind"`
	State      execution.State `json:"state"`
	Priority   float64         `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Key identifies a node within all workflow instances
func (s *Stub) Key() string {
	return Key(s.InstanceID, s.ModelID)
}

// Equal compares stubs by instance and model id
func (s *Stub) Equal(other *Stub) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.InstanceID == other.InstanceID && s.ModelID == other.ModelID
}

// Key builds a node key
func Key(instanceID, modelID string) string {
	return instanceID + "/" + modelID
}

// Stub returns a snapshot of the node
func (p *Processor) Stub() *Stub {
	return &Stub{
		InstanceID: p.InstanceID,
		ModelID:    p.ModelID,
		Name:       p.Name,
		Kind:       p.Kind,
		State:      p.State,
		Priority:   p.Priority,
	}
}
