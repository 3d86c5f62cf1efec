package dispatch

import (
	"sort"
	"sync"
)

type registration struct {
	nodeID     string
	dispatch   *Dispatch
	killed     bool
	killing    bool
	completing bool
}

// Registry tracks active dispatches by job id together with the node each
// runs on. It is the single place enforcing one active dispatch per job.
type Registry struct {
	mu       sync.Mutex
	released *sync.Cond
	jobs     map[string]*registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	ret := &Registry{jobs: map[string]*registration{}}
	ret.released = sync.NewCond(&ret.mu)
	return ret
}

// RegisterIfAbsent records dispatch for jobID on nodeID; false when the job
// already has an active dispatch.
func (r *Registry) RegisterIfAbsent(jobID, nodeID string, dispatch *Dispatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; ok {
		return false
	}
	r.jobs[jobID] = &registration{nodeID: nodeID, dispatch: dispatch}
	return true
}

// Lookup returns the active dispatch of jobID
func (r *Registry) Lookup(jobID string) (*Dispatch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.jobs[jobID]; ok {
		return entry.dispatch, true
	}
	return nil, false
}

// MarkKilled flags a running job as killed and drops its node mapping.
// known reports whether the job is registered at all; marked is false when
// the job is unknown or its dispatch is already completing.
func (r *Registry) MarkKilled(jobID string) (marked bool, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.jobs[jobID]
	if !ok {
		return false, false
	}
	if entry.completing {
		return false, true
	}
	entry.killed = true
	entry.nodeID = ""
	return true, true
}

// BeginKill reserves jobID for a kill in progress, waiting for a concurrent
// kill to resolve first. started is false when the job is unknown, already
// killed or its dispatch is completing.
func (r *Registry) BeginKill(jobID string) (started bool, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.waitKill(jobID)
	if !ok {
		return false, false
	}
	if entry.completing || entry.killed {
		return false, true
	}
	entry.killing = true
	return true, true
}

// EndKill resolves a kill started with BeginKill and wakes waiting completions
func (r *Registry) EndKill(jobID string, killed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.jobs[jobID]; ok {
		entry.killing = false
		if killed {
			entry.killed = true
			entry.nodeID = ""
		}
	}
	r.released.Broadcast()
}

// Complete claims the terminal outcome for jobID; false when the job was
// killed or is unknown. A kill in progress is waited for.
func (r *Registry) Complete(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.waitKill(jobID)
	if !ok || entry.killed {
		return false
	}
	entry.completing = true
	return true
}

// waitKill returns the registration of jobID once no kill is in progress; r.mu must be held
func (r *Registry) waitKill(jobID string) (*registration, bool) {
	for {
		entry, ok := r.jobs[jobID]
		if !ok || !entry.killing {
			return entry, ok
		}
		r.released.Wait()
	}
}

// Remove drops jobID and returns its dispatch
func (r *Registry) Remove(jobID string) (*Dispatch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	delete(r.jobs, jobID)
	return entry.dispatch, true
}

// JobsOnNode returns sorted ids of jobs mapped to nodeID
func (r *Registry) JobsOnNode(nodeID string) []string {
	r.mu.Lock()
	ret := []string{}
	for jobID, entry := range r.jobs {
		if entry.nodeID == nodeID && nodeID != "" {
			ret = append(ret, jobID)
		}
	}
	r.mu.Unlock()
	sort.Strings(ret)
	return ret
}

// Len returns number of registered jobs
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
