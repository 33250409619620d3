// Package jsonrpc implements the JSON-RPC 2.0 envelope used on a provider's
// standard streams.
//
// Every line written to or read from a provider is one complete Message. The
// package classifies incoming messages into requests, responses and
// notifications and normalises request IDs so that numeric and string IDs
// can be correlated through a single map key.
package jsonrpc
