package dispatch

import (
	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/service/messaging"
	"github.com/viant/cascade/service/monitor"
)

// Option represents a dispatcher option
type Option func(*Dispatcher)

// WithConfig sets dispatcher configuration
func WithConfig(config Config) Option {
	return func(d *Dispatcher) {
		d.config = config
	}
}

// WithMonitor sets the load monitor notified after success or failure
func WithMonitor(m monitor.Monitor) Option {
	return func(d *Dispatcher) {
		d.monitor = m
	}
}

// WithListener sets the status listener
func WithListener(listener Listener) Option {
	return func(d *Dispatcher) {
		d.listener = listener
	}
}

// WithOutcomes sets the queue receiving terminal job outcomes
func WithOutcomes(queue messaging.Queue[job.Outcome]) Option {
	return func(d *Dispatcher) {
		d.outcomes = queue
	}
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = log
	}
}
