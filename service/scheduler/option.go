package scheduler

import (
	"github.com/viant/cascade/logger"
	jobdao "github.com/viant/cascade/service/dao/job"
	"github.com/viant/cascade/service/monitor"
)

// Option represents a scheduler option
type Option func(*Service)

// WithQueue sets the runnable task source
func WithQueue(queue Queue) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithDispatcher sets the remote dispatcher
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = dispatcher
	}
}

// WithJobRepository sets the job store
func WithJobRepository(jobs jobdao.Repository) Option {
	return func(s *Service) {
		s.jobs = jobs
	}
}

// WithBalancer sets the node load balancer
func WithBalancer(balancer monitor.Balancer) Option {
	return func(s *Service) {
		s.balancer = balancer
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		s.logger = log
	}
}
