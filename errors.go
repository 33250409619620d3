package mcpsup

import "github.com/wagiedev/mcp-supervisor-go/internal/errors"

// Re-export error types from internal package

// SupervisorError is the base interface for all supervisor errors.
type SupervisorError = errors.SupervisorError

// SpawnError indicates a provider process could not be started or died
// during its grace period.
type SpawnError = errors.SpawnError

// HandshakeError indicates the initialize handshake failed.
type HandshakeError = errors.HandshakeError

// ProtocolError is an error reply from a provider.
type ProtocolError = errors.ProtocolError

// ProcessExitError describes how a provider process terminated.
type ProcessExitError = errors.ProcessExitError

// JSONDecodeError indicates a provider sent a line that is not valid JSON.
type JSONDecodeError = errors.JSONDecodeError

// ConfigError indicates an invalid provider configuration.
type ConfigError = errors.ConfigError

// Re-export sentinel errors from internal package.
var (
	// ErrTransportClosed indicates the transport was torn down.
	ErrTransportClosed = errors.ErrTransportClosed

	// ErrTransportNotConnected indicates the transport was never bound.
	ErrTransportNotConnected = errors.ErrTransportNotConnected

	// ErrTransportAlreadyBound indicates a second Bind on one transport.
	ErrTransportAlreadyBound = errors.ErrTransportAlreadyBound

	// ErrRequestTimeout indicates a request outlived its context deadline.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrConnectTimeout indicates spawn and handshake exceeded the provider timeout.
	ErrConnectTimeout = errors.ErrConnectTimeout

	// ErrProviderNotConnected indicates the provider has no live connection.
	ErrProviderNotConnected = errors.ErrProviderNotConnected

	// ErrMaxRestartsExceeded indicates the restart limit was reached.
	ErrMaxRestartsExceeded = errors.ErrMaxRestartsExceeded

	// ErrRestartInProgress indicates a restart loop owns the provider.
	ErrRestartInProgress = errors.ErrRestartInProgress

	// ErrSupervisorClosed indicates the supervisor has been closed.
	ErrSupervisorClosed = errors.ErrSupervisorClosed

	// ErrToolNotFound indicates the catalog does not know the tool.
	ErrToolNotFound = errors.ErrToolNotFound

	// ErrInvalidToolArguments indicates arguments failed schema validation.
	ErrInvalidToolArguments = errors.ErrInvalidToolArguments
)
