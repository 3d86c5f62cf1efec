package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/runtime/execution"
	jobdao "github.com/viant/cascade/service/dao/job"
	"github.com/viant/cascade/service/dispatch"
	"github.com/viant/cascade/service/monitor"
	"github.com/viant/cascade/tracing"
)

// Queue supplies runnable tasks and takes back the ones that could not be placed
type Queue interface {
	GetNext(ctx context.Context) (*execution.Instance, bool)
	SetState(ctx context.Context, instanceID, modelID string, state execution.State) error
}

// Dispatcher starts remote execution of a job
type Dispatcher interface {
	ExecuteRemotely(ctx context.Context, spec *job.Spec, node *job.ResourceNode) (bool, error)
}

// Service runs scheduling workers
type Service struct {
	config     Config
	queue      Queue
	dispatcher Dispatcher
	jobs       jobdao.Repository
	balancer   monitor.Balancer
	logger     logger.Logger

	mu         sync.Mutex
	workers    []*worker
	workerWg   sync.WaitGroup
	shutdownCh chan struct{}
	stopOnce   sync.Once
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a scheduler
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:     DefaultConfig(),
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if s.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if s.jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if s.balancer == nil {
		return nil, fmt.Errorf("balancer is required")
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// Start launches the workers and returns
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.workers) > 0 {
		return fmt.Errorf("scheduler already started")
	}
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{id: i, service: s, ctx: workerCtx, cancelFn: cancel}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	s.logger.Info(ctx, "scheduler started", "workers", s.config.WorkerCount)
	return nil
}

func (w *worker) run() {
	defer w.service.workerWg.Done()
	idle := w.service.config.IdleBackoff
	backoff := idle
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.service.shutdownCh:
			return
		default:
		}
		scheduled, err := w.service.ScheduleNext(w.ctx)
		if err != nil {
			w.service.logger.Warn(w.ctx, "failed to schedule task", "worker", w.id, "error", err)
		}
		if scheduled {
			backoff = idle
			continue
		}
		select {
		case <-w.ctx.Done():
			return
		case <-w.service.shutdownCh:
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > w.service.config.MaxIdleBackoff {
			backoff = w.service.config.MaxIdleBackoff
		}
	}
}

// ScheduleNext places one runnable task on the least loaded live node. Nodes
// reported down are skipped for this task; it returns false when nothing was
// runnable or the task had to be returned to the queue.
func (s *Service) ScheduleNext(ctx context.Context) (scheduled bool, err error) {
	instance, ok := s.queue.GetNext(ctx)
	if !ok {
		return false, nil
	}
	ctx, span := tracing.StartSpan(ctx, "cascade.schedule", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"instance.id": instance.InstanceID, "model.id": instance.ModelID, "job.id": instance.JobID})

	spec := job.NewSpec(instance)
	spec.Job.Status = job.StatusScheduled
	if err = s.jobs.Add(ctx, spec); err != nil {
		s.requeue(ctx, instance, err)
		return false, fmt.Errorf("failed to record job %v: %w", spec.ID(), err)
	}
	var down []string
	var downErr error
	for {
		var node *job.ResourceNode
		if node, err = s.balancer.LeastLoaded(ctx, spec.Job.Load, down...); err != nil {
			if downErr != nil {
				err = fmt.Errorf("%w: skipped down nodes %v: %w", err, down, downErr)
			}
			s.requeue(ctx, instance, err)
			return false, err
		}
		if err = s.balancer.AssignLoad(ctx, node, spec.Job.Load); err != nil {
			s.requeue(ctx, instance, err)
			return false, err
		}
		var accepted bool
		accepted, err = s.dispatcher.ExecuteRemotely(ctx, spec, node)
		if accepted {
			s.logger.Debug(ctx, "task scheduled", "jobID", spec.ID(), "nodeID", node.ID)
			return true, nil
		}
		if err == nil {
			err = fmt.Errorf("dispatch of %v rejected by %v", spec.ID(), node.ID)
		}
		if reduceErr := s.balancer.ReduceLoad(ctx, node, spec.Job.Load); reduceErr != nil {
			s.logger.Warn(ctx, "failed to release node load", "nodeID", node.ID, "error", reduceErr)
		}
		if !errors.Is(err, dispatch.ErrNodeDown) {
			s.requeue(ctx, instance, err)
			return false, err
		}
		s.logger.Debug(ctx, "node down, trying next", "jobID", spec.ID(), "nodeID", node.ID)
		down = append(down, node.ID)
		downErr = err
	}
}

// requeue returns the task to the runnable list
func (s *Service) requeue(ctx context.Context, instance *execution.Instance, cause error) {
	state := execution.StateWaitingOnResources.WithMessage(cause.Error())
	if err := s.queue.SetState(ctx, instance.InstanceID, instance.ModelID, state); err != nil {
		s.logger.Warn(ctx, "failed to requeue task", "instanceID", instance.InstanceID, "modelID", instance.ModelID, "error", err)
	}
}

// Shutdown stops the workers and waits for them
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.shutdownCh)
	})
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()
	for _, w := range workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
}
