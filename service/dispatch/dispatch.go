package dispatch

import (
	"sync"

	"github.com/viant/cascade/model/job"
)

// Dispatch is the completion handle of one proxy run
type Dispatch struct {
	spec *job.Spec
	node *job.ResourceNode
	done chan struct{}
	once sync.Once

	status job.Status
	err    error
}

func newDispatch(spec *job.Spec, node *job.ResourceNode) *Dispatch {
	return &Dispatch{spec: spec, node: node, done: make(chan struct{})}
}

// JobID returns dispatched job id
func (d *Dispatch) JobID() string {
	return d.spec.ID()
}

// NodeID returns target node id
func (d *Dispatch) NodeID() string {
	return d.node.ID
}

// Done is closed once the proxy finished
func (d *Dispatch) Done() <-chan struct{} {
	return d.done
}

// Status returns the terminal status; valid after Done
func (d *Dispatch) Status() job.Status {
	<-d.done
	return d.status
}

// Err returns the execution error, if any; valid after Done
func (d *Dispatch) Err() error {
	<-d.done
	return d.err
}

func (d *Dispatch) resolve(status job.Status, err error) {
	d.once.Do(func() {
		d.status = status
		d.err = err
		close(d.done)
	})
}
