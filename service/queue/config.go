package queue

import (
	"fmt"
	"time"
)

// Config represents queue manager configuration
type Config struct {
	// PollingInterval is how often the promotion loop runs
	PollingInterval time.Duration `json:"pollingInterval,omitempty" yaml:"pollingInterval,omitempty"`

	// Yield is the pause between instances within one promotion cycle
	Yield time.Duration `json:"yield,omitempty" yaml:"yield,omitempty"`

	// ShutdownTimeout bounds the promotion loop join
	ShutdownTimeout time.Duration `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`

	// MetadataKeys lists metadata keys kept with stubs for filtering
	MetadataKeys []string `json:"metadataKeys,omitempty" yaml:"metadataKeys,omitempty"`

	// ResidentCacheSize is the number of idle trees kept in memory; 0 releases immediately
	ResidentCacheSize int `json:"residentCacheSize,omitempty" yaml:"residentCacheSize,omitempty"`

	// Priority selects the runnable ordering: highest or fifo
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`

	// RestoreConcurrency limits concurrent loads during Restore
	RestoreConcurrency int `json:"restoreConcurrency,omitempty" yaml:"restoreConcurrency,omitempty"`

	// DetectDeadlocks enables lock order and hold time checks on instance locks.
	// Detection is process wide, see ConfigureDeadlockDetection.
	DetectDeadlocks bool `json:"detectDeadlocks,omitempty" yaml:"detectDeadlocks,omitempty"`

	// DeadlockTimeout is how long an instance lock may be waited on before it is reported
	DeadlockTimeout time.Duration `json:"deadlockTimeout,omitempty" yaml:"deadlockTimeout,omitempty"`
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{
		PollingInterval:    20 * time.Millisecond,
		Yield:              0,
		ShutdownTimeout:    5 * time.Second,
		Priority:           PriorityHighest,
		RestoreConcurrency: 8,
		DeadlockTimeout:    2 * time.Minute,
	}
}

// Validate checks configuration
func (c *Config) Validate() error {
	if c.PollingInterval <= 0 {
		return fmt.Errorf("queue: polling interval must be positive")
	}
	if c.ResidentCacheSize < 0 {
		return fmt.Errorf("queue: resident cache size must not be negative")
	}
	if c.DetectDeadlocks && c.DeadlockTimeout <= 0 {
		return fmt.Errorf("queue: deadlock timeout must be positive when detection is enabled")
	}
	if _, err := NewPriorityManager(c.Priority); err != nil {
		return err
	}
	return nil
}
