package cascade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/progress"
	"github.com/viant/cascade/runtime/execution"
	jobdao "github.com/viant/cascade/service/dao/job"
	"github.com/viant/cascade/service/dispatch"
	"github.com/viant/cascade/service/messaging"
	"github.com/viant/cascade/service/monitor"
	"github.com/viant/cascade/service/queue"
	"github.com/viant/cascade/service/scheduler"
	"github.com/viant/cascade/service/transport"
	"github.com/viant/cascade/tracing"
)

// Runtime represents a running job queue: promotion loop, scheduler workers
// and dispatcher sharing one set of repositories.
type Runtime struct {
	config           *Config
	logger           logger.Logger
	manager          *queue.Manager
	dispatcher       *dispatch.Dispatcher
	scheduler        *scheduler.Service
	jobs             jobdao.Repository
	transport        transport.Transport
	balancer         monitor.Balancer
	outcomes         messaging.Queue[job.Outcome]
	listener         dispatch.Listener
	manualScheduling bool
	tracing          bool
	closers          []io.Closer

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancelFn context.CancelFunc
}

// Start restores persisted workflows, then starts the promotion loop and,
// unless scheduling is manual, the scheduler workers.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}
	if err := r.manager.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore queue: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancelFn = cancel
	r.started = true
	go func() {
		if err := r.manager.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error(runCtx, "promotion loop stopped", "error", err)
		}
	}()
	if r.manualScheduling {
		return nil
	}
	if err := r.scheduler.Start(runCtx); err != nil {
		return err
	}
	return nil
}

// Shutdown stops scheduling and promotion, waits for in-flight dispatches
// until ctx is done, then releases stores.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	var errs []error
	r.scheduler.Shutdown()
	if err := r.manager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	done := make(chan struct{})
	go func() {
		r.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("in-flight dispatches not finished: %w", ctx.Err()))
	}
	if r.cancelFn != nil {
		r.cancelFn()
	}
	for _, closer := range r.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.tracing {
		if err := tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enqueue adds a workflow tree to the queue, stamping configured static metadata on its root
func (r *Runtime) Enqueue(ctx context.Context, tree *processor.Processor) error {
	if tree != nil && len(r.config.StaticMetadata) > 0 {
		tree.StaticMetadata = r.config.StaticMetadata.Merge(tree.StaticMetadata)
	}
	return r.manager.AddToQueue(ctx, tree)
}

// Progress returns task counters of a workflow instance
func (r *Runtime) Progress(ctx context.Context, instanceID string) (progress.Progress, error) {
	tree, err := r.manager.WorkflowProcessor(ctx, instanceID)
	if err != nil {
		return progress.Progress{}, err
	}
	return progress.Of(tree), nil
}

// ScheduleNext hands out one runnable task to a node; used with manual scheduling
func (r *Runtime) ScheduleNext(ctx context.Context) (bool, error) {
	return r.scheduler.ScheduleNext(ctx)
}

// KillJob kills a job on the node and releases the load it held
func (r *Runtime) KillJob(ctx context.Context, jobID, nodeID string) (bool, error) {
	node := r.node(nodeID)
	if node == nil {
		return false, fmt.Errorf("%w: %v", monitor.ErrUnknownNode, nodeID)
	}
	killed, err := r.dispatcher.KillJob(ctx, jobID, node)
	if err != nil || !killed {
		return killed, err
	}
	load := 1
	if spec, err := r.jobs.Job(ctx, jobID); err == nil && spec.Job.Load > 0 {
		load = spec.Job.Load
	}
	if err := r.balancer.ReduceLoad(ctx, node, load); err != nil {
		r.logger.Warn(ctx, "failed to release load of killed job", "jobID", jobID, "nodeID", nodeID, "error", err)
	}
	return true, nil
}

func (r *Runtime) node(nodeID string) *job.ResourceNode {
	for _, node := range r.balancer.Nodes() {
		if node.ID == nodeID {
			return node
		}
	}
	return nil
}

// onJobStatus applies a reported job status to the owning task. Reports for
// deleted workflows or tasks in an incompatible state are dropped.
func (r *Runtime) onJobStatus(ctx context.Context, spec *job.Spec, status job.Status) {
	var state execution.State
	switch status {
	case job.StatusExecuting:
		state = execution.StateExecuting
	case job.StatusSuccess:
		state = execution.StateSuccess
	case job.StatusFailure:
		state = execution.StateFailure.WithMessage(spec.Job.Error)
	case job.StatusKilled:
		state = execution.StateKilled
	default:
		return
	}
	if err := r.manager.SetState(ctx, spec.Job.InstanceID, spec.Job.ModelID, state); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			r.logger.Info(ctx, "job status for unknown task discarded", "jobID", spec.ID(), "status", status)
		} else {
			r.logger.Warn(ctx, "failed to apply job status", "jobID", spec.ID(), "status", status, "error", err)
		}
	}
	if r.listener != nil {
		r.listener(ctx, spec, status)
	}
}

// Manager returns the queue manager
func (r *Runtime) Manager() *queue.Manager {
	return r.manager
}

// Dispatcher returns the dispatcher
func (r *Runtime) Dispatcher() *dispatch.Dispatcher {
	return r.dispatcher
}

// Scheduler returns the scheduler
func (r *Runtime) Scheduler() *scheduler.Service {
	return r.scheduler
}

// Jobs returns the job repository
func (r *Runtime) Jobs() jobdao.Repository {
	return r.jobs
}

// Balancer returns the node load monitor
func (r *Runtime) Balancer() monitor.Balancer {
	return r.balancer
}

// Transport returns the node transport
func (r *Runtime) Transport() transport.Transport {
	return r.transport
}

// Outcomes returns the terminal outcome stream, nil when disabled
func (r *Runtime) Outcomes() messaging.Queue[job.Outcome] {
	return r.outcomes
}
