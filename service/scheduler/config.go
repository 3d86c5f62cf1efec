package scheduler

import (
	"fmt"
	"time"
)

// Config represents scheduler configuration
type Config struct {
	// WorkerCount is the number of polling workers
	WorkerCount int `json:"workerCount,omitempty" yaml:"workerCount,omitempty"`

	// IdleBackoff is the initial pause after an empty or rejected poll
	IdleBackoff time.Duration `json:"idleBackoff,omitempty" yaml:"idleBackoff,omitempty"`

	// MaxIdleBackoff caps the doubling idle pause
	MaxIdleBackoff time.Duration `json:"maxIdleBackoff,omitempty" yaml:"maxIdleBackoff,omitempty"`
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:    4,
		IdleBackoff:    10 * time.Millisecond,
		MaxIdleBackoff: 500 * time.Millisecond,
	}
}

// Validate checks configuration
func (c *Config) Validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("scheduler: worker count must be positive")
	}
	if c.IdleBackoff <= 0 {
		return fmt.Errorf("scheduler: idle backoff must be positive")
	}
	if c.MaxIdleBackoff < c.IdleBackoff {
		c.MaxIdleBackoff = c.IdleBackoff
	}
	return nil
}
