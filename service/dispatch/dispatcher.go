// Package dispatch sends job specs to resource nodes. Every accepted
// dispatch runs on its own goroutine and reports exactly one terminal
// status through the dispatcher callbacks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sethvargo/go-retry"
	"github.com/viant/cascade/internal/clock"
	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/service/dao"
	jobdao "github.com/viant/cascade/service/dao/job"
	"github.com/viant/cascade/service/messaging"
	"github.com/viant/cascade/service/monitor"
	"github.com/viant/cascade/service/transport"
)

// Listener observes every job status the dispatcher records
type Listener func(ctx context.Context, spec *job.Spec, status job.Status)

// Dispatcher executes jobs remotely
type Dispatcher struct {
	config    Config
	transport transport.Transport
	jobs      jobdao.Repository
	monitor   monitor.Monitor
	listener  Listener
	outcomes  messaging.Queue[job.Outcome]
	registry  *Registry
	logger    logger.Logger
	inFlight  sync.WaitGroup
}

// New creates a dispatcher
func New(transport transport.Transport, jobs jobdao.Repository, options ...Option) (*Dispatcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("dispatch: transport was nil")
	}
	if jobs == nil {
		return nil, fmt.Errorf("dispatch: job repository was nil")
	}
	d := &Dispatcher{
		config:    DefaultConfig(),
		transport: transport,
		jobs:      jobs,
		registry:  NewRegistry(),
	}
	for _, opt := range options {
		opt(d)
	}
	if err := d.config.Validate(); err != nil {
		return nil, err
	}
	if d.logger == nil {
		d.logger = logger.Nop()
	}
	d.logger = d.logger.With("component", "dispatch")
	return d, nil
}

// ExecuteRemotely probes node and, when alive, starts an asynchronous proxy
// executing spec. True means accepted for dispatch, not succeeded.
func (d *Dispatcher) ExecuteRemotely(ctx context.Context, spec *job.Spec, node *job.ResourceNode) (bool, error) {
	if spec.ID() == "" {
		return false, ErrInvalidSpec
	}
	if node == nil {
		return false, fmt.Errorf("%w: nil node", ErrNodeDown)
	}
	if !d.NodeAlive(ctx, node) {
		return false, fmt.Errorf("%w: %v", ErrNodeDown, node.ID)
	}
	dispatch := newDispatch(spec.Clone(), node)
	if !d.registry.RegisterIfAbsent(spec.ID(), node.ID, dispatch) {
		return false, fmt.Errorf("%w: %v", ErrAlreadyDispatched, spec.ID())
	}
	d.inFlight.Add(1)
	go d.runProxy(context.WithoutCancel(ctx), dispatch)
	d.logger.Debug(ctx, "job dispatched", "jobID", spec.ID(), "nodeID", node.ID)
	return true, nil
}

// KillJob kills a job running on node. It fails without side effects when
// the job is unknown, already terminal or the node refuses.
func (d *Dispatcher) KillJob(ctx context.Context, jobID string, node *job.ResourceNode) (bool, error) {
	spec, err := d.jobs.Job(ctx, jobID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return false, fmt.Errorf("%w: %v", ErrJobNotFound, jobID)
		}
		return false, fmt.Errorf("failed to look up job %v: %w", jobID, err)
	}
	if spec.Job.Status.IsTerminal() {
		return false, fmt.Errorf("%w: %v is %v", ErrJobTerminal, jobID, spec.Job.Status)
	}
	if node == nil {
		return false, fmt.Errorf("%w: nil node", ErrNodeDown)
	}
	started, known := d.registry.BeginKill(jobID)
	if known && !started {
		return false, fmt.Errorf("%w: %v completed before kill", ErrJobTerminal, jobID)
	}
	killed, err := d.kill(ctx, jobID, node)
	if err == nil && !killed {
		err = fmt.Errorf("%w: %v on %v", ErrKillRejected, jobID, node.ID)
	}
	if started {
		d.registry.EndKill(jobID, err == nil)
	}
	if err != nil {
		return false, err
	}
	if !known {
		if current, err := d.jobs.Job(ctx, jobID); err == nil && current.Job.Status.IsTerminal() {
			return false, fmt.Errorf("%w: %v is %v", ErrJobTerminal, jobID, current.Job.Status)
		}
	}
	d.JobKilled(ctx, spec, node)
	return true, nil
}

func (d *Dispatcher) kill(ctx context.Context, jobID string, node *job.ResourceNode) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.config.CallTimeout)
	defer cancel()
	client, err := d.transport.Connect(callCtx, node)
	if err != nil {
		return false, fmt.Errorf("%w: %v: %v", ErrNodeDown, node.ID, err)
	}
	defer client.Close()
	killed, err := client.Kill(callCtx, jobID)
	if err != nil {
		return false, fmt.Errorf("%w: %v on %v: %v", ErrKillRejected, jobID, node.ID, err)
	}
	return killed, nil
}

// NodeAlive probes node within the call timeout
func (d *Dispatcher) NodeAlive(ctx context.Context, node *job.ResourceNode) bool {
	if node == nil {
		return false
	}
	callCtx, cancel := context.WithTimeout(ctx, d.config.CallTimeout)
	defer cancel()
	client, err := d.transport.Connect(callCtx, node)
	if err != nil {
		d.logger.Debug(ctx, "node unreachable", "nodeID", node.ID, "error", err)
		return false
	}
	defer client.Close()
	return client.IsAlive(callCtx)
}

// JobsOnNode returns sorted ids of jobs dispatched to nodeID and not killed
func (d *Dispatcher) JobsOnNode(nodeID string) []string {
	return d.registry.JobsOnNode(nodeID)
}

// Active returns the dispatch of jobID while it is registered
func (d *Dispatcher) Active(jobID string) (*Dispatch, bool) {
	return d.registry.Lookup(jobID)
}

// Wait blocks until every in-flight proxy finished
func (d *Dispatcher) Wait() {
	d.inFlight.Wait()
}

// JobExecuting persists EXECUTING before the remote call is issued
func (d *Dispatcher) JobExecuting(ctx context.Context, spec *job.Spec) {
	d.record(ctx, spec, job.StatusExecuting, nil, nil)
}

// JobSuccess persists SUCCESS and unregisters the job
func (d *Dispatcher) JobSuccess(ctx context.Context, spec *job.Spec, node *job.ResourceNode) {
	d.record(ctx, spec, job.StatusSuccess, nil, node)
	d.registry.Remove(spec.ID())
}

// JobFailure persists FAILURE with cause and unregisters the job
func (d *Dispatcher) JobFailure(ctx context.Context, spec *job.Spec, node *job.ResourceNode, cause error) {
	d.record(ctx, spec, job.StatusFailure, cause, node)
	d.registry.Remove(spec.ID())
}

// JobKilled drops the node mapping and persists KILLED. The proxy still
// owns the registration until its remote call returns.
func (d *Dispatcher) JobKilled(ctx context.Context, spec *job.Spec, node *job.ResourceNode) {
	d.registry.MarkKilled(spec.ID())
	d.record(ctx, spec, job.StatusKilled, nil, node)
}

// NotifyMonitor releases the job load on node; failures are logged
func (d *Dispatcher) NotifyMonitor(ctx context.Context, node *job.ResourceNode, spec *job.Spec) {
	if d.monitor == nil || spec == nil || spec.Job == nil {
		return
	}
	if err := d.monitor.ReduceLoad(ctx, node, spec.Job.Load); err != nil {
		d.logger.Warn(ctx, "failed to reduce node load", "nodeID", node.ID, "jobID", spec.ID(), "error", err)
	}
}

func (d *Dispatcher) record(ctx context.Context, spec *job.Spec, status job.Status, cause error, node *job.ResourceNode) {
	spec.Job.Status = status
	spec.Job.Error = ""
	if cause != nil {
		spec.Job.Error = cause.Error()
	}
	spec.Job.UpdatedAt = clock.Now()
	if status == job.StatusExecuting {
		spec.Job.StartedAt = spec.Job.UpdatedAt
	}
	if err := d.updateJob(ctx, spec.Clone()); err != nil {
		d.logger.Error(ctx, "failed to update job", "jobID", spec.ID(), "status", status, "error", err)
	}
	if status.IsTerminal() {
		d.publish(ctx, spec, node)
	}
	if d.listener != nil {
		d.listener(ctx, spec.Clone(), status)
	}
}

func (d *Dispatcher) updateJob(ctx context.Context, spec *job.Spec) error {
	backoff := retry.WithMaxRetries(d.config.UpdateRetries, retry.NewConstant(d.config.UpdateRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := d.jobs.Update(ctx, spec)
		if errors.Is(err, dao.ErrNotFound) {
			err = d.jobs.Add(ctx, spec)
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (d *Dispatcher) publish(ctx context.Context, spec *job.Spec, node *job.ResourceNode) {
	if d.outcomes == nil {
		return
	}
	outcome := &job.Outcome{JobID: spec.ID(), Status: spec.Job.Status, Error: spec.Job.Error, At: spec.Job.UpdatedAt}
	if !spec.Job.StartedAt.IsZero() {
		outcome.Elapsed = clock.Since(spec.Job.StartedAt)
	}
	if node != nil {
		outcome.NodeID = node.ID
	}
	publishCtx, cancel := context.WithTimeout(ctx, d.config.CallTimeout)
	defer cancel()
	if err := d.outcomes.Publish(publishCtx, outcome); err != nil {
		d.logger.Warn(ctx, "failed to publish job outcome", "jobID", spec.ID(), "error", err)
	}
}
