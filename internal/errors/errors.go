package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SupervisorError is the base interface for all supervisor errors.
type SupervisorError interface {
	error
	IsSupervisorError() bool
}

// Compile-time verification that all error types implement SupervisorError.
var (
	_ SupervisorError = (*SpawnError)(nil)
	_ SupervisorError = (*HandshakeError)(nil)
	_ SupervisorError = (*ProtocolError)(nil)
	_ SupervisorError = (*ProcessExitError)(nil)
	_ SupervisorError = (*JSONDecodeError)(nil)
	_ SupervisorError = (*ConfigError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrTransportClosed is returned to every pending request when the
	// transport is torn down, whether by Disconnect or by the process exiting.
	ErrTransportClosed = errors.New("transport closed")

	// ErrTransportNotConnected indicates the transport is not bound or no longer connected.
	ErrTransportNotConnected = errors.New("transport not connected")

	// ErrTransportAlreadyBound indicates Bind was called on a bound transport.
	ErrTransportAlreadyBound = errors.New("transport already bound")

	// ErrRequestTimeout indicates a request did not receive a reply in time.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrConnectTimeout indicates the provider did not come up within its configured timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrProviderNotConnected indicates no live connection exists for the provider.
	ErrProviderNotConnected = errors.New("provider not connected")

	// ErrMaxRestartsExceeded indicates the restart budget of a provider is exhausted.
	ErrMaxRestartsExceeded = errors.New("max restart attempts exceeded")

	// ErrRestartInProgress indicates a restart loop currently owns the provider.
	ErrRestartInProgress = errors.New("restart in progress")

	// ErrSupervisorClosed indicates the supervisor has been closed and cannot be reused.
	ErrSupervisorClosed = errors.New("supervisor closed")

	// ErrToolNotFound indicates the requested tool is not known for the provider.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidToolArguments indicates tool arguments failed input schema validation.
	ErrInvalidToolArguments = errors.New("invalid tool arguments")
)

// SpawnError indicates the provider subprocess could not be started.
type SpawnError struct {
	Provider string
	Command  string
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn provider %q (%s): %v", e.Provider, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsSupervisorError implements SupervisorError.
func (e *SpawnError) IsSupervisorError() bool { return true }

// HandshakeError indicates the process started but the protocol handshake
// did not complete.
type HandshakeError struct {
	Provider string
	Err      error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with provider %q: %v", e.Provider, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// IsSupervisorError implements SupervisorError.
func (e *HandshakeError) IsSupervisorError() bool { return true }

// ProtocolError is a well-formed error reply to a specific request.
type ProtocolError struct {
	Method  string
	Code    int64
	Message string
	Data    json.RawMessage
}

func (e *ProtocolError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: remote error %d: %s", e.Method, e.Code, e.Message)
	}

	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// IsSupervisorError implements SupervisorError.
func (e *ProtocolError) IsSupervisorError() bool { return true }

// ProcessExitError describes a provider process that terminated on its own.
type ProcessExitError struct {
	ExitCode int
	Signal   string
	Stderr   string
	Err      error
}

func (e *ProcessExitError) Error() string {
	var cause string

	switch {
	case e.Signal != "":
		cause = fmt.Sprintf("killed by signal %s", e.Signal)
	default:
		cause = fmt.Sprintf("exit %d", e.ExitCode)
	}

	if e.Stderr != "" {
		return fmt.Sprintf("provider process exited (%s): %s", cause, e.Stderr)
	}

	if e.Err != nil {
		return fmt.Sprintf("provider process exited (%s): %v", cause, e.Err)
	}

	return fmt.Sprintf("provider process exited (%s)", cause)
}

func (e *ProcessExitError) Unwrap() error {
	return e.Err
}

// IsSupervisorError implements SupervisorError.
func (e *ProcessExitError) IsSupervisorError() bool { return true }

// JSONDecodeError indicates a line of provider output was not valid JSON.
// This error preserves the original raw data that failed to parse.
type JSONDecodeError struct {
	RawData string
	Err     error
}

func (e *JSONDecodeError) Error() string {
	return fmt.Sprintf("failed to decode JSON from provider: %v", e.Err)
}

func (e *JSONDecodeError) Unwrap() error {
	return e.Err
}

// IsSupervisorError implements SupervisorError.
func (e *JSONDecodeError) IsSupervisorError() bool { return true }

// ConfigError indicates an invalid provider configuration.
type ConfigError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("invalid provider config: %s %s", e.Field, e.Reason)
	}

	return fmt.Sprintf("invalid config for provider %q: %s %s", e.Provider, e.Field, e.Reason)
}

// IsSupervisorError implements SupervisorError.
func (e *ConfigError) IsSupervisorError() bool { return true }
