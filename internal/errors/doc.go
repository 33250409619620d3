// Package errors defines error types for the provider supervisor.
//
// This package provides structured error types that wrap the different failure
// scenarios of spawning, handshaking with, and talking to tool-provider
// subprocesses. All error types support error unwrapping and can be checked
// using errors.Is, errors.As, and errors.AsType.
package errors
