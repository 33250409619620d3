package mcpsup

import (
	"context"
	"log/slog"
	"time"

	"github.com/wagiedev/mcp-supervisor-go/internal/catalog"
	"github.com/wagiedev/mcp-supervisor-go/internal/supervisor"
)

// Supervisor owns the lifecycle of subprocess tool providers.
//
// For every provider name it keeps at most one live connection and one health
// record. Providers are probed at their configured interval and restarted
// when they crash or stop answering.
//
// Example usage:
//
//	sup := NewSupervisor(WithLogger(slog.Default()))
//	defer sup.Close()
//
//	tr, err := sup.Connect(ctx, &ProviderConfig{Name: "echo", Command: "./echo-provider"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, rec := range sup.CheckAllServersHealth(ctx) {
//	    fmt.Println(rec.ProviderName, rec.Status)
//	}
type Supervisor interface {
	// Connect starts the provider and completes the handshake.
	// An already connected provider's transport is returned without spawning.
	// Returns SpawnError or HandshakeError on failure, ErrConnectTimeout when
	// the provider's timeout elapses, ErrRestartInProgress while a restart
	// loop owns the provider.
	Connect(ctx context.Context, cfg *ProviderConfig) (*Transport, error)

	// Disconnect stops the provider and removes all of its state.
	// Disconnecting an unknown provider is a no-op.
	Disconnect(name string) error

	// IsConnected reports whether the provider has a live connection.
	IsConnected(name string) bool

	// GetConnectedServers returns the names of live providers in sorted order.
	GetConnectedServers() []string

	// GetTransport returns the provider's live transport.
	GetTransport(name string) (*Transport, bool)

	// GetServerInfo returns the provider's initialize result.
	GetServerInfo(name string) (*ServerInfo, bool)

	// GetServerHealth returns the provider's health record.
	GetServerHealth(name string) (HealthRecord, bool)

	// GetAllServerHealth returns every health record ordered by provider name.
	GetAllServerHealth() []HealthRecord

	// PerformHealthCheck probes the provider once and returns its record.
	// A provider without a live connection yields an unknown-status record.
	PerformHealthCheck(ctx context.Context, name string) HealthRecord

	// CheckAllServersHealth probes every connected provider concurrently.
	CheckAllServersHealth(ctx context.Context) []HealthRecord

	// GetRestartCount returns the provider's restart attempt counter.
	GetRestartCount(name string) int

	// ResetRestartCount zeroes the provider's restart counter.
	ResetRestartCount(name string)

	// GetServerUptime returns how long the current connection has been up.
	GetServerUptime(name string) time.Duration

	// OnHealthEvent subscribes to health events.
	OnHealthEvent(h HealthEventHandler) ListenerID

	// OffHealthEvent removes a subscription. It reports whether id was subscribed.
	OffHealthEvent(id ListenerID) bool

	// Close disconnects every provider and waits for background work.
	// After Close, Connect returns ErrSupervisorClosed. Safe to call multiple times.
	Close() error
}

// Compile-time check that the internal supervisor implements Supervisor.
var _ Supervisor = (*supervisor.Supervisor)(nil)

// NewSupervisor creates a supervisor configured by opts.
//
//	sup := NewSupervisor(
//	    WithLogger(slog.Default()),
//	    WithRestartBackoff(500*time.Millisecond, 2*time.Second),
//	)
func NewSupervisor(opts ...Option) Supervisor {
	return supervisor.New(applyOptions(opts))
}

// NewToolCatalog creates a tool catalog that follows sup's providers.
// A nil logger disables logging.
func NewToolCatalog(sup Supervisor, logger *slog.Logger) *ToolCatalog {
	return catalog.New(logger, sup)
}
