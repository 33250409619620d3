package config

import (
	"time"

	"github.com/wagiedev/mcp-supervisor-go/internal/errors"
)

const (
	// DefaultConnectTimeout bounds spawn plus handshake.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultMaxRestartAttempts caps consecutive restarts.
	DefaultMaxRestartAttempts = 3
)

// ProviderConfig identifies and configures one subprocess-backed provider.
//
// The supervisor keeps a reference to the config for the lifetime of the
// connection; it must not be modified once Connect has been called.
type ProviderConfig struct {
	// Name uniquely identifies the provider within a supervisor.
	Name string `json:"name" yaml:"name"`

	// Command is the executable to launch.
	Command string `json:"command" yaml:"command"`

	// Args are passed to Command.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env entries override the ambient environment of the process.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Dir is the working directory of the process.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Timeout bounds spawning and the handshake together.
	// If zero, defaults to 30s.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// HealthCheckInterval is the period of liveness probes.
	// Zero disables periodic probing.
	HealthCheckInterval time.Duration `json:"healthCheckInterval,omitempty" yaml:"healthCheckInterval,omitempty"`

	// AutoRestart enables the restart state machine.
	// If nil, restarts are enabled.
	AutoRestart *bool `json:"autoRestart,omitempty" yaml:"autoRestart,omitempty"`

	// MaxRestartAttempts caps consecutive restart attempts.
	// If zero, defaults to 3.
	MaxRestartAttempts int `json:"maxRestartAttempts,omitempty" yaml:"maxRestartAttempts,omitempty"`
}

// Validate checks the config for values the supervisor cannot work with.
func (c *ProviderConfig) Validate() error {
	switch {
	case c.Name == "":
		return &errors.ConfigError{Field: "name", Reason: "is required"}
	case c.Command == "":
		return &errors.ConfigError{Provider: c.Name, Field: "command", Reason: "is required"}
	case c.Timeout < 0:
		return &errors.ConfigError{Provider: c.Name, Field: "timeout", Reason: "must not be negative"}
	case c.HealthCheckInterval < 0:
		return &errors.ConfigError{Provider: c.Name, Field: "healthCheckInterval", Reason: "must not be negative"}
	case c.MaxRestartAttempts < 0:
		return &errors.ConfigError{Provider: c.Name, Field: "maxRestartAttempts", Reason: "must not be negative"}
	}

	return nil
}

// ConnectTimeout returns Timeout or its default.
func (c *ProviderConfig) ConnectTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}

	return DefaultConnectTimeout
}

// AutoRestartEnabled reports whether restarts are enabled.
func (c *ProviderConfig) AutoRestartEnabled() bool {
	return c.AutoRestart == nil || *c.AutoRestart
}

// RestartLimit returns MaxRestartAttempts or its default.
func (c *ProviderConfig) RestartLimit() int {
	if c.MaxRestartAttempts > 0 {
		return c.MaxRestartAttempts
	}

	return DefaultMaxRestartAttempts
}
