// Package memory implements an in-process cluster of workers reachable
// through the transport interface.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/service/transport"
)

// Handler runs a job on a worker; ctx is cancelled when the job is killed.
type Handler func(ctx context.Context, spec *job.Spec) (bool, error)

// Succeed is the default handler
func Succeed(context.Context, *job.Spec) (bool, error) {
	return true, nil
}

// Worker simulates a remote node
type Worker struct {
	Address string

	alive    atomic.Bool
	handler  Handler
	mu       sync.Mutex
	running  map[string]context.CancelFunc
	executed []string
}

// SetAlive toggles node reachability
func (w *Worker) SetAlive(alive bool) {
	w.alive.Store(alive)
}

// Alive returns node reachability
func (w *Worker) Alive() bool {
	return w.alive.Load()
}

// Executed returns ids of jobs started on the worker, in start order
func (w *Worker) Executed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.executed...)
}

// Running returns sorted ids of jobs in flight
func (w *Worker) Running() []string {
	w.mu.Lock()
	ret := make([]string, 0, len(w.running))
	for id := range w.running {
		ret = append(ret, id)
	}
	w.mu.Unlock()
	sort.Strings(ret)
	return ret
}

func (w *Worker) execute(ctx context.Context, spec *job.Spec) (bool, error) {
	if !w.Alive() {
		return false, fmt.Errorf("%w: %v", transport.ErrUnreachable, w.Address)
	}
	jobID := spec.ID()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.mu.Lock()
	if _, ok := w.running[jobID]; ok {
		w.mu.Unlock()
		return false, fmt.Errorf("job %v already running on %v", jobID, w.Address)
	}
	w.running[jobID] = cancel
	w.executed = append(w.executed, jobID)
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.running, jobID)
		w.mu.Unlock()
	}()
	ok, err := w.handler(runCtx, spec.Clone())
	if runCtx.Err() != nil && ctx.Err() == nil {
		return false, fmt.Errorf("job %v killed: %w", jobID, runCtx.Err())
	}
	return ok, err
}

func (w *Worker) kill(jobID string) (bool, error) {
	if !w.Alive() {
		return false, fmt.Errorf("%w: %v", transport.ErrUnreachable, w.Address)
	}
	w.mu.Lock()
	cancel, ok := w.running[jobID]
	w.mu.Unlock()
	if !ok {
		return false, nil
	}
	cancel()
	return true, nil
}

// Cluster is a set of workers keyed by address
type Cluster struct {
	mu      sync.RWMutex
	workers map[string]*Worker
}

// New creates an empty cluster
func New() *Cluster {
	return &Cluster{workers: map[string]*Worker{}}
}

// AddWorker registers a live worker at address; a nil handler always succeeds
func (c *Cluster) AddWorker(address string, handler Handler) *Worker {
	if handler == nil {
		handler = Succeed
	}
	worker := &Worker{Address: address, handler: handler, running: map[string]context.CancelFunc{}}
	worker.SetAlive(true)
	c.mu.Lock()
	c.workers[address] = worker
	c.mu.Unlock()
	return worker
}

// Worker returns worker at address
func (c *Cluster) Worker(address string) *Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workers[address]
}

// Connect returns a client bound to the node's worker
func (c *Cluster) Connect(_ context.Context, node *job.ResourceNode) (transport.Client, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil node", transport.ErrUnreachable)
	}
	worker := c.Worker(node.Address)
	if worker == nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrUnreachable, node.Address)
	}
	return &client{worker: worker}, nil
}

type client struct {
	worker *Worker
	closed atomic.Bool
}

func (c *client) IsAlive(context.Context) bool {
	return !c.closed.Load() && c.worker.Alive()
}

func (c *client) Execute(ctx context.Context, spec *job.Spec) (bool, error) {
	if c.closed.Load() {
		return false, transport.ErrClosed
	}
	return c.worker.execute(ctx, spec)
}

func (c *client) Kill(_ context.Context, jobID string) (bool, error) {
	if c.closed.Load() {
		return false, transport.ErrClosed
	}
	return c.worker.kill(jobID)
}

func (c *client) Close() error {
	c.closed.Store(true)
	return nil
}

var _ transport.Transport = (*Cluster)(nil)
