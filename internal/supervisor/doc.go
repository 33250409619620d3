// Package supervisor owns the lifecycle of tool-provider connections.
//
// For every provider name the Supervisor keeps at most one live connection:
// a subprocess, the transport bound to its standard streams, and the
// background goroutines watching it. A connection is established by spawning
// the process, waiting out a short grace period, and running the initialize
// handshake, all within the provider's connect timeout.
//
// Once connected, the provider is probed with ping at its health-check
// interval. A failed probe or an unexpected exit marks the provider
// unhealthy and, unless auto-restart is disabled, starts the restart loop:
//
//	attempt N: emit restarting, tear down, wait N × base delay, reconnect
//	  success: emit restarted, counter resets to zero
//	  failure: wait the retry delay and try attempt N+1, or, once N reaches
//	           the provider's limit, emit restart_failed and stop
//
// Only one restart loop runs per provider; failures reported while it is
// active are logged and ignored. Disconnect cancels everything in flight for
// that provider and removes all of its state.
package supervisor
