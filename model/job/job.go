// Package job defines units of remote execution and the nodes that run them.
package job

import (
	"time"

	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/runtime/execution"
)

// Status represents job lifecycle status
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusScheduled Status = "SCHEDULED"
	StatusExecuting Status = "EXECUTING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailure   Status = "FAILURE"
	StatusKilled    Status = "KILLED"
)

// IsTerminal returns true for success, failure and killed
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusKilled:
		return true
	}
	return false
}

// Job represents a unit of remote execution
type Job struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	InstanceID  string    `json:"instanceId,omitempty"`
	ModelID     string    `json:"modelId,omitempty"`
	JobInstance string    `json:"jobInstance,omitempty"`
	Load        int       `json:"load"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Spec bundles a job with its input metadata
type Spec struct {
	Job   *Job              `json:"job"`
	Input metadata.Metadata `json:"input,omitempty"`
}

// NewSpec builds a queued job spec from an execution-ready instance
func NewSpec(instance *execution.Instance) *Spec {
	load := instance.Load
	if load <= 0 {
		load = 1
	}
	return &Spec{
		Job: &Job{
			ID:          instance.JobID,
			Name:        instance.Name,
			InstanceID:  instance.InstanceID,
			ModelID:     instance.ModelID,
			JobInstance: instance.JobInstance,
			Load:        load,
			Status:      StatusQueued,
		},
		Input: instance.Metadata(),
	}
}

// ID returns job id
func (s *Spec) ID() string {
	if s == nil || s.Job == nil {
		return ""
	}
	return s.Job.ID
}

// Clone returns a deep copy
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	ret := &Spec{Input: s.Input.Clone()}
	if s.Job != nil {
		aJob := *s.Job
		ret.Job = &aJob
	}
	return ret
}

// ResourceNode identifies a remote worker
type ResourceNode struct {
	ID          string `json:"id" yaml:"id"`
	Address     string `json:"address" yaml:"address"`
	Capacity    int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Credentials string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
}

// Outcome records a terminal job status reported by a node
type Outcome struct {
	JobID  string    `json:"jobId"`
	NodeID string    `json:"nodeId"`
	Status Status    `json:"status"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`

	// Elapsed is measured from the start of execution; zero when the job never started
	Elapsed time.Duration `json:"elapsed,omitempty"`
}
