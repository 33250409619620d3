package mcpsup

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/mcp-supervisor-go/internal/catalog"
	"github.com/wagiedev/mcp-supervisor-go/internal/config"
	"github.com/wagiedev/mcp-supervisor-go/internal/health"
	"github.com/wagiedev/mcp-supervisor-go/internal/transport"
)

// Re-export types from internal packages

// ===== Options and Configuration =====

// SupervisorOptions configures a Supervisor.
type SupervisorOptions = config.Options

// ProviderConfig identifies and configures one subprocess-backed provider.
type ProviderConfig = config.ProviderConfig

const (
	// DefaultConnectTimeout bounds spawn plus handshake.
	DefaultConnectTimeout = config.DefaultConnectTimeout
	// DefaultMaxRestartAttempts caps consecutive restarts.
	DefaultMaxRestartAttempts = config.DefaultMaxRestartAttempts
	// DefaultProtocolVersion is the protocol revision offered in the handshake.
	DefaultProtocolVersion = config.DefaultProtocolVersion
)

// ===== Transport =====

// Transport is the JSON-RPC channel to one provider process.
type Transport = transport.Transport

// NotificationHandler receives provider notifications.
type NotificationHandler = transport.NotificationHandler

// ServerInfo is the provider's reply to the initialize handshake.
type ServerInfo = mcp.InitializeResult

// ===== Health =====

// HealthRecord is a snapshot of one provider's health.
type HealthRecord = health.Record

// HealthStatus is the health state of a provider.
type HealthStatus = health.Status

const (
	// StatusUnknown is the state before a connect has completed.
	StatusUnknown = health.StatusUnknown
	// StatusHealthy means the last handshake or probe succeeded.
	StatusHealthy = health.StatusHealthy
	// StatusUnhealthy means the last probe failed or the process exited.
	StatusUnhealthy = health.StatusUnhealthy
	// StatusRestarting means a restart loop owns the provider.
	StatusRestarting = health.StatusRestarting
	// StatusRestartFailed is the terminal state after the restart limit.
	StatusRestartFailed = health.StatusRestartFailed
)

// HealthEvent is a health transition of one provider.
type HealthEvent = health.Event

// HealthEventType names a kind of health transition.
type HealthEventType = health.EventType

const (
	// EventHealthy follows a successful probe.
	EventHealthy = health.EventHealthy
	// EventUnhealthy follows a failed probe or an unexpected exit.
	EventUnhealthy = health.EventUnhealthy
	// EventRestarting precedes every restart attempt.
	EventRestarting = health.EventRestarting
	// EventRestarted follows a successful restart.
	EventRestarted = health.EventRestarted
	// EventRestartFailed is emitted once the restart limit is reached.
	EventRestartFailed = health.EventRestartFailed
)

// HealthyEvent is emitted after a successful probe.
type HealthyEvent = health.HealthyEvent

// UnhealthyEvent is emitted when a probe fails or a process exits unexpectedly.
type UnhealthyEvent = health.UnhealthyEvent

// RestartingEvent is emitted before each restart attempt.
type RestartingEvent = health.RestartingEvent

// RestartedEvent is emitted after a successful restart.
type RestartedEvent = health.RestartedEvent

// RestartFailedEvent is emitted when a provider runs out of restart attempts.
type RestartFailedEvent = health.RestartFailedEvent

// HealthEventHandler receives health events.
type HealthEventHandler = health.Handler

// ListenerID identifies a health event subscription.
type ListenerID = health.ListenerID

// ===== Tools =====

// Tool is one tool of one provider.
type Tool = catalog.Tool

// ToolCatalog is a live view of every provider's tools.
type ToolCatalog = catalog.Catalog
