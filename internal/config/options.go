// Package config provides configuration types for the provider supervisor.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// DefaultProtocolVersion is the protocol revision offered in the handshake.
	DefaultProtocolVersion = "2025-06-18"
	// DefaultClientName identifies the supervisor to providers.
	DefaultClientName = "mcp-supervisor-go"
	// DefaultClientVersion is reported when no client version is configured.
	DefaultClientVersion = "0.1.0"

	// DefaultProbeTimeout bounds a single liveness probe.
	DefaultProbeTimeout = 5 * time.Second
	// DefaultSpawnGrace is how long a fresh process must survive before the
	// handshake starts.
	DefaultSpawnGrace = 100 * time.Millisecond
	// DefaultRestartBaseDelay is multiplied by the attempt number before each restart.
	DefaultRestartBaseDelay = time.Second
	// DefaultRestartRetryDelay is the pause after a failed reconnect.
	DefaultRestartRetryDelay = 5 * time.Second

	// ProbeTimeoutEnv overrides the probe timeout, in whole seconds.
	ProbeTimeoutEnv = "MCPSUP_PROBE_TIMEOUT"
)

// Options configures a Supervisor.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// ClientName and ClientVersion are sent as clientInfo in the handshake.
	ClientName    string
	ClientVersion string

	// ProtocolVersion is offered in the initialize request.
	ProtocolVersion string

	// Capabilities are advertised in the initialize request.
	// If nil, an empty capability set is sent.
	Capabilities *mcp.ClientCapabilities

	// ProbeTimeout bounds each liveness probe. It is independent of the
	// per-provider connect timeout.
	// If zero, defaults to 5s or the MCPSUP_PROBE_TIMEOUT env var.
	ProbeTimeout time.Duration

	// SpawnGrace is how long a process must stay alive after spawning
	// before it counts as started.
	SpawnGrace time.Duration

	// RestartBaseDelay is the pre-retry delay unit: attempt N waits N times this.
	RestartBaseDelay time.Duration

	// RestartRetryDelay is the fixed pause after a reconnect attempt fails.
	RestartRetryDelay time.Duration

	// Stderr receives every stderr line of every provider process.
	Stderr func(provider, line string)
}

// ApplyDefaults fills every unset field with its default.
func (o *Options) ApplyDefaults() {
	if o.ClientName == "" {
		o.ClientName = DefaultClientName
	}

	if o.ClientVersion == "" {
		o.ClientVersion = DefaultClientVersion
	}

	if o.ProtocolVersion == "" {
		o.ProtocolVersion = DefaultProtocolVersion
	}

	if o.Capabilities == nil {
		o.Capabilities = &mcp.ClientCapabilities{}
	}

	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = probeTimeoutFromEnv()
	}

	if o.SpawnGrace <= 0 {
		o.SpawnGrace = DefaultSpawnGrace
	}

	if o.RestartBaseDelay <= 0 {
		o.RestartBaseDelay = DefaultRestartBaseDelay
	}

	if o.RestartRetryDelay <= 0 {
		o.RestartRetryDelay = DefaultRestartRetryDelay
	}
}

// ClientInfo returns the implementation descriptor sent in the handshake.
func (o *Options) ClientInfo() *mcp.Implementation {
	return &mcp.Implementation{Name: o.ClientName, Version: o.ClientVersion}
}

// probeTimeoutFromEnv returns the probe timeout from the env var, or the default.
func probeTimeoutFromEnv() time.Duration {
	if timeoutStr := os.Getenv(ProbeTimeoutEnv); timeoutStr != "" {
		if timeoutSec, err := strconv.Atoi(timeoutStr); err == nil && timeoutSec > 0 {
			return time.Duration(timeoutSec) * time.Second
		}
	}

	return DefaultProbeTimeout
}
