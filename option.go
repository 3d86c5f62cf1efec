package cascade

import (
	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/job"
	jobdao "github.com/viant/cascade/service/dao/job"
	daoprocessor "github.com/viant/cascade/service/dao/processor"
	"github.com/viant/cascade/service/dispatch"
	"github.com/viant/cascade/service/messaging"
	"github.com/viant/cascade/service/monitor"
	"github.com/viant/cascade/service/queue"
	"github.com/viant/cascade/service/transport"
	"github.com/viant/cascade/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option represents a cascade service option
type Option func(s *Service)

// WithConfig sets the engine configuration
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the logger shared by every service
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		s.logger = log
	}
}

// WithProcessorRepository sets the workflow tree repository
func WithProcessorRepository(repo daoprocessor.Repository) Option {
	return func(s *Service) {
		s.processorRepo = repo
	}
}

// WithJobRepository sets the job repository
func WithJobRepository(jobs jobdao.Repository) Option {
	return func(s *Service) {
		s.jobs = jobs
	}
}

// WithTransport sets the remote node transport
func WithTransport(t transport.Transport) Option {
	return func(s *Service) {
		s.transport = t
	}
}

// WithBalancer sets the node load monitor; configured nodes are not
// registered with a custom balancer.
func WithBalancer(balancer monitor.Balancer) Option {
	return func(s *Service) {
		s.balancer = balancer
	}
}

// WithOutcomes sets the terminal job outcome stream
func WithOutcomes(outcomes messaging.Queue[job.Outcome]) Option {
	return func(s *Service) {
		s.outcomes = outcomes
	}
}

// WithPriorityManager overrides the configured runnable ordering
func WithPriorityManager(priority queue.PriorityManager) Option {
	return func(s *Service) {
		s.priority = priority
	}
}

// WithJobListener registers a listener called after a job status was applied
// to its task.
func WithJobListener(listener dispatch.Listener) Option {
	return func(s *Service) {
		s.listener = listener
	}
}

// WithManualScheduling disables the scheduler workers; the host drives
// scheduling through Runtime.ScheduleNext.
func WithManualScheduling() Option {
	return func(s *Service) {
		s.manualScheduling = true
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The function is
// safe to call multiple times – the first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
		s.tracing = true
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter, for example
// OTLP, Jaeger or Zipkin. The function is safe to call multiple times – the first successful
// initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
		s.tracing = true
	}
}
