package mcpsup

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSpawnError_Creation tests SpawnError formatting and unwrapping.
func TestSpawnError_Creation(t *testing.T) {
	innerErr := fmt.Errorf("executable file not found")
	err := &SpawnError{Provider: "files", Command: "files-provider", Err: innerErr}

	require.Error(t, err)
	require.Contains(t, err.Error(), `spawn provider "files"`)
	require.Contains(t, err.Error(), "files-provider")
	require.ErrorIs(t, err, innerErr)
}

// TestHandshakeError_WrapsTimeout tests that sentinels survive the wrapper.
func TestHandshakeError_WrapsTimeout(t *testing.T) {
	err := &HandshakeError{
		Provider: "files",
		Err:      fmt.Errorf("%w after 30s", ErrConnectTimeout),
	}

	require.ErrorIs(t, err, ErrConnectTimeout)
	require.Contains(t, err.Error(), "handshake with provider")
}

// TestProcessExitError_AsType tests extracting exit details through wrapping.
func TestProcessExitError_AsType(t *testing.T) {
	exit := &ProcessExitError{ExitCode: 2, Stderr: "panic: boom"}
	wrapped := fmt.Errorf("%w: %w", ErrTransportClosed, exit)

	got, ok := errors.AsType[*ProcessExitError](wrapped)
	require.True(t, ok)
	require.Equal(t, 2, got.ExitCode)
	require.ErrorIs(t, wrapped, ErrTransportClosed)
	require.Contains(t, wrapped.Error(), "exit 2")
	require.Contains(t, wrapped.Error(), "panic: boom")
}

// TestProtocolError_Formatting tests the remote error message.
func TestProtocolError_Formatting(t *testing.T) {
	err := &ProtocolError{Method: "tools/call", Code: -32602, Message: "invalid params"}

	require.Equal(t, "tools/call: remote error -32602: invalid params", err.Error())
}

// TestConfigError_Formatting tests ConfigError with and without a provider.
func TestConfigError_Formatting(t *testing.T) {
	require.Equal(t,
		"invalid provider config: name is required",
		(&ConfigError{Field: "name", Reason: "is required"}).Error(),
	)
	require.Equal(t,
		`invalid config for provider "files": command is required`,
		(&ConfigError{Provider: "files", Field: "command", Reason: "is required"}).Error(),
	)
}

// TestSupervisorError_Interface tests that all typed errors share the marker.
func TestSupervisorError_Interface(t *testing.T) {
	errs := []error{
		&SpawnError{},
		&HandshakeError{},
		&ProtocolError{},
		&ProcessExitError{},
		&JSONDecodeError{},
		&ConfigError{},
	}

	for _, err := range errs {
		sdkErr, ok := err.(SupervisorError)
		require.True(t, ok, "%T", err)
		require.True(t, sdkErr.IsSupervisorError())
	}
}
