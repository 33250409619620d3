package mcpsup

import (
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Option configures SupervisorOptions using the functional options pattern.
type Option func(*SupervisorOptions)

// applyOptions applies functional options to a SupervisorOptions struct.
func applyOptions(opts []Option) *SupervisorOptions {
	options := &SupervisorOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *SupervisorOptions) {
		o.Logger = logger
	}
}

// WithClientInfo sets the name and version sent as clientInfo in the handshake.
func WithClientInfo(name, version string) Option {
	return func(o *SupervisorOptions) {
		o.ClientName = name
		o.ClientVersion = version
	}
}

// WithProtocolVersion sets the protocol revision offered in the handshake.
func WithProtocolVersion(version string) Option {
	return func(o *SupervisorOptions) {
		o.ProtocolVersion = version
	}
}

// WithCapabilities sets the client capabilities advertised in the handshake.
func WithCapabilities(caps *mcp.ClientCapabilities) Option {
	return func(o *SupervisorOptions) {
		o.Capabilities = caps
	}
}

// WithProbeTimeout bounds every liveness probe.
// If not set, MCPSUP_PROBE_TIMEOUT (seconds) or 5s is used.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *SupervisorOptions) {
		o.ProbeTimeout = d
	}
}

// WithSpawnGrace sets how long a fresh process must survive before the
// handshake starts.
func WithSpawnGrace(d time.Duration) Option {
	return func(o *SupervisorOptions) {
		o.SpawnGrace = d
	}
}

// WithRestartBackoff sets the restart delays: attempt N waits N times base,
// and a failed reconnect pauses for retry before the next attempt.
func WithRestartBackoff(base, retry time.Duration) Option {
	return func(o *SupervisorOptions) {
		o.RestartBaseDelay = base
		o.RestartRetryDelay = retry
	}
}

// WithStderr receives every stderr line of every provider process.
// The callback runs on the goroutine reading that provider's stderr.
func WithStderr(fn func(provider, line string)) Option {
	return func(o *SupervisorOptions) {
		o.Stderr = fn
	}
}
