// Package shell runs jobs as shell commands on resource nodes through gosh
// sessions: a local runner for localhost addresses, SSH otherwise.
package shell

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/service/transport"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	rssh "github.com/viant/gosh/runner/ssh"
	"github.com/viant/scy/cred/secret"
	"golang.org/x/crypto/ssh"
)

// Config represents shell transport configuration
type Config struct {
	// PidDir is where job pid files are kept on the node
	PidDir string `json:"pidDir,omitempty" yaml:"pidDir,omitempty"`

	// Timeout bounds a single job command
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ProbeTimeout bounds liveness and kill commands
	ProbeTimeout time.Duration `json:"probeTimeout,omitempty" yaml:"probeTimeout,omitempty"`

	// EnvPrefix is prepended to job input keys exported to the command
	EnvPrefix string `json:"envPrefix,omitempty" yaml:"envPrefix,omitempty"`

	// DefaultCredentials is the scy credentials reference used when a node has none
	DefaultCredentials string `json:"defaultCredentials,omitempty" yaml:"defaultCredentials,omitempty"`
}

// DefaultConfig returns default shell transport configuration
func DefaultConfig() Config {
	return Config{
		PidDir:             "/tmp/cascade",
		Timeout:            time.Hour,
		ProbeTimeout:       10 * time.Second,
		EnvPrefix:          "CASCADE_",
		DefaultCredentials: "localhost",
	}
}

// Transport connects to nodes over gosh
type Transport struct {
	config Config
	logger logger.Logger
}

// New creates a shell transport
func New(config Config, log logger.Logger) *Transport {
	defaults := DefaultConfig()
	if config.PidDir == "" {
		config.PidDir = defaults.PidDir
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.DefaultCredentials == "" {
		config.DefaultCredentials = defaults.DefaultCredentials
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Transport{config: config, logger: log.With("component", "shell")}
}

// Connect returns a client for node. Sessions are opened per call, so one
// client may execute while another kills.
func (t *Transport) Connect(ctx context.Context, node *job.ResourceNode) (transport.Client, error) {
	if node == nil || node.Address == "" {
		return nil, fmt.Errorf("%w: missing address", transport.ErrUnreachable)
	}
	host, isLocal := endpoint(node.Address)
	ret := &client{transport: t, node: node, host: host, local: isLocal}
	if !isLocal {
		config, err := t.sshConfig(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("%w: %v: %v", transport.ErrUnreachable, node.ID, err)
		}
		ret.sshConfig = config
	}
	return ret, nil
}

func (t *Transport) sshConfig(ctx context.Context, node *job.ResourceNode) (*ssh.ClientConfig, error) {
	credentials := node.Credentials
	if credentials == "" {
		credentials = t.config.DefaultCredentials
	}
	generic, err := secret.New().GetCredentials(ctx, credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials %v: %w", credentials, err)
	}
	return generic.SSH.Config(ctx)
}

type client struct {
	transport *Transport
	node      *job.ResourceNode
	host      string
	local     bool
	sshConfig *ssh.ClientConfig
	closed    atomic.Bool
}

func (c *client) session(ctx context.Context, env map[string]string) (*gosh.Service, error) {
	var options []runner.Option
	if len(env) > 0 {
		options = append(options, runner.WithEnvironment(env))
	}
	if c.local {
		return gosh.New(ctx, local.New(options...))
	}
	return gosh.New(ctx, rssh.New(c.host, c.sshConfig, options...))
}

func (c *client) run(ctx context.Context, command string, timeout time.Duration, env map[string]string) (string, int, error) {
	if c.closed.Load() {
		return "", -1, transport.ErrClosed
	}
	service, err := c.session(ctx, env)
	if err != nil {
		return "", -1, fmt.Errorf("%w: %v: %v", transport.ErrUnreachable, c.node.ID, err)
	}
	defer service.Close()
	return service.Run(ctx, command, runner.WithTimeout(int(timeout.Milliseconds())))
}

func (c *client) IsAlive(ctx context.Context) bool {
	stdout, status, err := c.run(ctx, "echo alive", c.transport.config.ProbeTimeout, nil)
	if err != nil || status != 0 {
		c.transport.logger.Debug(ctx, "node probe failed", "nodeID", c.node.ID, "status", status, "error", err)
		return false
	}
	return strings.Contains(stdout, "alive")
}

func (c *client) Execute(ctx context.Context, spec *job.Spec) (bool, error) {
	if spec == nil || spec.Job == nil {
		return false, fmt.Errorf("shell: nil job")
	}
	config := c.transport.config
	command := executeCommand(config.PidDir, spec.Job.ID, spec.Job.JobInstance)
	stdout, status, err := c.run(ctx, command, config.Timeout, environment(config.EnvPrefix, spec.Input))
	if err != nil {
		return false, fmt.Errorf("job %v on %v: %w", spec.Job.ID, c.node.ID, err)
	}
	if status != 0 {
		return false, fmt.Errorf("job %v exited with %d: %s", spec.Job.ID, status, strings.TrimSpace(stdout))
	}
	return true, nil
}

func (c *client) Kill(ctx context.Context, jobID string) (bool, error) {
	_, status, err := c.run(ctx, killCommand(c.transport.config.PidDir, jobID), c.transport.config.ProbeTimeout, nil)
	if err != nil {
		return false, err
	}
	return status == 0, nil
}

func (c *client) Close() error {
	c.closed.Store(true)
	return nil
}

var _ transport.Transport = (*Transport)(nil)
