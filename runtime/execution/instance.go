package execution

import "github.com/viant/cascade/model/metadata"

// Instance is the execution-ready descriptor of a runnable task handed to a
// scheduler.
type Instance struct {
	JobID           string            `json:"jobId"`
	InstanceID      string            `json:"instanceId"`
	ModelID         string            `json:"modelId"`
	Name            string            `json:"name,omitempty"`
	JobInstance     string            `json:"jobInstance,omitempty"`
	Priority        float64           `json:"priority"`
	Load            int               `json:"load"`
	DynamicMetadata metadata.Metadata `json:"dynamicMetadata,omitempty"`
	StaticMetadata  metadata.Metadata `json:"staticMetadata,omitempty"`
}

// Metadata returns static metadata overlaid with dynamic metadata
func (i *Instance) Metadata() metadata.Metadata {
	return i.StaticMetadata.Merge(i.DynamicMetadata)
}
