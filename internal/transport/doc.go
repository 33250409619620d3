// Package transport implements the request/response layer spoken with a
// provider process over its standard streams.
//
// A Transport is bound to exactly one process. It frames outgoing messages as
// newline-delimited JSON-RPC, correlates responses to requests by id, answers
// liveness probes the provider sends back, and fans notifications out to
// registered listeners.
//
// The Transport handles:
//   - Monotonically increasing request ids starting at 1
//   - Concurrent outstanding requests, answered in any order
//   - Skipping malformed lines and dropping responses with unknown ids
//   - Rejecting every pending request once the process exits or
//     Disconnect is called
//
// Example usage:
//
//	proc, _ := subprocess.Start(ctx, log, subprocess.Config{Command: "my-provider"})
//
//	t := transport.New(log)
//	if err := t.Bind(proc); err != nil {
//		return err
//	}
//	defer t.Disconnect()
//
//	result, err := t.SendRequest(ctx, "tools/list", nil)
package transport
