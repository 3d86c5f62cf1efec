package queue

import (
	"github.com/viant/cascade/logger"
	daoprocessor "github.com/viant/cascade/service/dao/processor"
)

// Option represents a manager option
type Option func(*Manager)

// WithConfig sets manager configuration
func WithConfig(config Config) Option {
	return func(m *Manager) {
		m.config = config
	}
}

// WithRepository sets the processor tree repository
func WithRepository(repo daoprocessor.Repository) Option {
	return func(m *Manager) {
		m.repo = repo
	}
}

// WithPriorityManager overrides the configured runnable ordering
func WithPriorityManager(priority PriorityManager) Option {
	return func(m *Manager) {
		m.priority = priority
	}
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		m.logger = log
	}
}

// WithMetadataKeys sets metadata keys cached with stubs
func WithMetadataKeys(keys ...string) Option {
	return func(m *Manager) {
		m.config.MetadataKeys = keys
	}
}

// WithResidentCacheSize sets the idle tree window size
func WithResidentCacheSize(size int) Option {
	return func(m *Manager) {
		m.config.ResidentCacheSize = size
	}
}
