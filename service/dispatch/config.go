package dispatch

import (
	"fmt"
	"time"
)

// Config represents dispatcher configuration
type Config struct {
	// CallTimeout bounds liveness probes, kill calls and outcome publishing
	CallTimeout time.Duration `json:"callTimeout,omitempty" yaml:"callTimeout,omitempty"`

	// ExecuteTimeout bounds a remote execution; 0 means unbounded
	ExecuteTimeout time.Duration `json:"executeTimeout,omitempty" yaml:"executeTimeout,omitempty"`

	// UpdateRetries is the number of retries of a failed job status update
	UpdateRetries uint64 `json:"updateRetries,omitempty" yaml:"updateRetries,omitempty"`

	// UpdateRetryDelay is the constant pause between update retries
	UpdateRetryDelay time.Duration `json:"updateRetryDelay,omitempty" yaml:"updateRetryDelay,omitempty"`
}

// DefaultConfig returns default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		CallTimeout:      10 * time.Second,
		UpdateRetries:    3,
		UpdateRetryDelay: 50 * time.Millisecond,
	}
}

// Validate checks configuration
func (c *Config) Validate() error {
	if c.CallTimeout <= 0 {
		return fmt.Errorf("dispatch: call timeout must be positive")
	}
	if c.ExecuteTimeout < 0 {
		return fmt.Errorf("dispatch: execute timeout must not be negative")
	}
	if c.UpdateRetryDelay <= 0 {
		return fmt.Errorf("dispatch: update retry delay must be positive")
	}
	return nil
}
