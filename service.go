package cascade

import (
	"context"
	"fmt"
	"io"

	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/job"
	jobdao "github.com/viant/cascade/service/dao/job"
	jobmemory "github.com/viant/cascade/service/dao/job/memory"
	"github.com/viant/cascade/service/dao/job/sqlite"
	daoprocessor "github.com/viant/cascade/service/dao/processor"
	"github.com/viant/cascade/service/dao/processor/fs"
	pmemory "github.com/viant/cascade/service/dao/processor/memory"
	"github.com/viant/cascade/service/dispatch"
	"github.com/viant/cascade/service/messaging"
	mmemory "github.com/viant/cascade/service/messaging/memory"
	"github.com/viant/cascade/service/monitor"
	monmemory "github.com/viant/cascade/service/monitor/memory"
	"github.com/viant/cascade/service/queue"
	"github.com/viant/cascade/service/scheduler"
	"github.com/viant/cascade/service/transport"
	tmemory "github.com/viant/cascade/service/transport/memory"
	"github.com/viant/cascade/service/transport/shell"
	"github.com/viant/cascade/tracing"
)

// Service represents cascade service
type Service struct {
	runtime          *Runtime
	config           *Config
	logger           logger.Logger
	processorRepo    daoprocessor.Repository
	jobs             jobdao.Repository
	transport        transport.Transport
	balancer         monitor.Balancer
	outcomes         messaging.Queue[job.Outcome]
	priority         queue.PriorityManager
	listener         dispatch.Listener
	manualScheduling bool
	tracing          bool
	closers          []io.Closer
}

func (s *Service) init(ctx context.Context, options []Option) error {
	for _, option := range options {
		option(s)
	}
	if err := s.ensureBaseSetup(ctx); err != nil {
		return err
	}
	r := s.runtime
	r.config = s.config
	r.logger = s.logger
	r.jobs = s.jobs
	r.transport = s.transport
	r.balancer = s.balancer
	r.outcomes = s.outcomes
	r.listener = s.listener
	r.manualScheduling = s.manualScheduling
	r.tracing = s.tracing
	r.closers = s.closers

	queueOptions := []queue.Option{
		queue.WithConfig(s.config.Queue),
		queue.WithRepository(s.processorRepo),
		queue.WithLogger(s.logger),
	}
	if s.priority != nil {
		queueOptions = append(queueOptions, queue.WithPriorityManager(s.priority))
	}
	var err error
	if r.manager, err = queue.New(queueOptions...); err != nil {
		return fmt.Errorf("failed to create queue manager: %w", err)
	}

	dispatchOptions := []dispatch.Option{
		dispatch.WithConfig(s.config.Dispatch),
		dispatch.WithMonitor(s.balancer),
		dispatch.WithListener(r.onJobStatus),
		dispatch.WithLogger(s.logger),
	}
	if s.outcomes != nil {
		dispatchOptions = append(dispatchOptions, dispatch.WithOutcomes(s.outcomes))
	}
	if r.dispatcher, err = dispatch.New(s.transport, s.jobs, dispatchOptions...); err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	r.scheduler, err = scheduler.New(
		scheduler.WithQueue(r.manager),
		scheduler.WithDispatcher(r.dispatcher),
		scheduler.WithJobRepository(s.jobs),
		scheduler.WithBalancer(s.balancer),
		scheduler.WithConfig(s.config.Scheduler),
		scheduler.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	return nil
}

// Runtime returns the engine runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

func (s *Service) ensureBaseSetup(ctx context.Context) error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.logger == nil {
		s.logger = logger.New(logger.ParseLevel(s.config.Log.Level), logger.Format(s.config.Log.Format))
	}
	if qc := s.config.Queue; !queue.ConfigureDeadlockDetection(qc.DetectDeadlocks, qc.DeadlockTimeout) && qc.DetectDeadlocks {
		s.logger.Warn(ctx, "deadlock detection already configured for this process", "timeout", qc.DeadlockTimeout)
	}
	if tc := s.config.Tracing; tc.Enabled && !s.tracing {
		if err := tracing.Init(tc.ServiceName, tc.ServiceVersion, tc.OutputFile); err != nil {
			s.logger.Warn(ctx, "failed to initialise tracing", "error", err)
		} else {
			s.tracing = true
		}
	}

	if s.processorRepo == nil {
		if URL := s.config.Store.ProcessorURL; URL != "" {
			repo, err := fs.New(ctx, URL)
			if err != nil {
				return fmt.Errorf("failed to create processor repository: %w", err)
			}
			s.processorRepo = repo
		} else {
			s.processorRepo = pmemory.New()
		}
	}
	if s.jobs == nil {
		if dsn := s.config.Store.JobDSN; dsn != "" {
			jobs, err := sqlite.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("failed to create job repository: %w", err)
			}
			s.jobs = jobs
			s.closers = append(s.closers, jobs)
		} else {
			jobs, err := jobmemory.New()
			if err != nil {
				return fmt.Errorf("failed to create job repository: %w", err)
			}
			s.jobs = jobs
		}
	}
	if s.transport == nil {
		switch s.config.Transport {
		case TransportShell:
			s.transport = shell.New(s.config.Shell, s.logger)
		default:
			cluster := tmemory.New()
			for _, node := range s.config.Nodes {
				cluster.AddWorker(node.Address, tmemory.Succeed)
			}
			s.transport = cluster
		}
	}
	if s.balancer == nil {
		s.balancer = monmemory.New(s.config.Nodes...)
	}
	if s.outcomes == nil && s.config.Outcomes.Enabled {
		outcomes := mmemory.New[job.Outcome](s.config.Outcomes.Queue)
		s.outcomes = outcomes
		s.closers = append(s.closers, outcomes)
	}
	return nil
}

// New creates a cascade service; collaborators not supplied as options are
// created from the configuration.
func New(options ...Option) (*Service, error) {
	ret := &Service{runtime: &Runtime{}}
	if err := ret.init(context.Background(), options); err != nil {
		return nil, err
	}
	return ret, nil
}
