package cascade

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/service/dispatch"
	mmemory "github.com/viant/cascade/service/messaging/memory"
	"github.com/viant/cascade/service/queue"
	"github.com/viant/cascade/service/scheduler"
	"github.com/viant/cascade/service/transport/shell"
	"gopkg.in/yaml.v3"
)

const (
	// TransportMemory runs jobs on an in-process cluster, one worker per node
	TransportMemory = "memory"
	// TransportShell runs jobs as shell commands, locally or over ssh
	TransportShell = "shell"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from YAML or JSON. Nested sections left out of a document keep
// their package defaults.
type Config struct {
	Queue     queue.Config        `json:"queue" yaml:"queue"`
	Dispatch  dispatch.Config     `json:"dispatch" yaml:"dispatch"`
	Scheduler scheduler.Config    `json:"scheduler" yaml:"scheduler"`
	Transport string              `json:"transport" yaml:"transport"`
	Shell     shell.Config        `json:"shell" yaml:"shell"`
	Nodes     []*job.ResourceNode `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Store     StoreConfig         `json:"store" yaml:"store"`
	Outcomes  OutcomesConfig      `json:"outcomes" yaml:"outcomes"`
	Log       LogConfig           `json:"log" yaml:"log"`
	Tracing   TracingConfig       `json:"tracing" yaml:"tracing"`

	// StaticMetadata is stamped onto the root of every enqueued workflow; keys
	// already set on the tree win
	StaticMetadata metadata.Metadata `json:"staticMetadata,omitempty" yaml:"staticMetadata,omitempty"`
}

// StoreConfig selects persistence; empty locations use in-memory stores.
type StoreConfig struct {
	// ProcessorURL is an afs base URL for workflow trees, e.g. file:///var/cascade/trees
	ProcessorURL string `json:"processorURL,omitempty" yaml:"processorURL,omitempty"`
	// JobDSN is a sqlite data source name for job records
	JobDSN string `json:"jobDSN,omitempty" yaml:"jobDSN,omitempty"`
}

// OutcomesConfig controls the terminal job outcome stream
type OutcomesConfig struct {
	Enabled bool           `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Queue   mmemory.Config `json:"queue" yaml:"queue"`
}

type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

type TracingConfig struct {
	Enabled        bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	ServiceName    string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	ServiceVersion string `json:"serviceVersion,omitempty" yaml:"serviceVersion,omitempty"`
	// OutputFile receives spans; stdout when empty
	OutputFile string `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
}

// DefaultConfig returns a Config populated with the package defaults of every
// service. Callers may modify the returned struct before passing it to
// WithConfig.
func DefaultConfig() *Config {
	return &Config{
		Queue:     queue.DefaultConfig(),
		Dispatch:  dispatch.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Transport: TransportMemory,
		Shell:     shell.DefaultConfig(),
		Outcomes:  OutcomesConfig{Queue: mmemory.DefaultConfig()},
		Log:       LogConfig{Level: "info", Format: "text"},
		Tracing:   TracingConfig{ServiceName: "cascade"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Dispatch.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Transport {
	case TransportMemory, TransportShell:
	default:
		errs = append(errs, fmt.Errorf("unsupported transport: %q", c.Transport))
	}
	seen := map[string]bool{}
	for i, node := range c.Nodes {
		switch {
		case node == nil:
			errs = append(errs, fmt.Errorf("nodes[%d] is nil", i))
			continue
		case node.ID == "":
			errs = append(errs, fmt.Errorf("nodes[%d].id is required", i))
		case seen[node.ID]:
			errs = append(errs, fmt.Errorf("duplicate node id: %v", node.ID))
		}
		seen[node.ID] = true
		if node.Address == "" {
			errs = append(errs, fmt.Errorf("nodes[%d].address is required", i))
		}
		if node.Capacity < 0 {
			errs = append(errs, fmt.Errorf("nodes[%d].capacity must not be negative", i))
		}
	}
	if c.Outcomes.Enabled && c.Outcomes.Queue.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("outcomes.queue.buffer must be > 0"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML (or JSON) document from URL on top of DefaultConfig
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to download config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return ret, nil
}
