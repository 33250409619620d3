package health

import "time"

// EventType names a health transition.
type EventType string

const (
	EventHealthy       EventType = "healthy"
	EventUnhealthy     EventType = "unhealthy"
	EventRestarting    EventType = "restarting"
	EventRestarted     EventType = "restarted"
	EventRestartFailed EventType = "restart_failed"
)

// Event is a lifecycle transition of one provider.
// Use a type switch to access the concrete payload.
type Event interface {
	EventType() EventType
	Provider() string
	Time() time.Time
}

// Compile-time verification that all event types implement Event.
var (
	_ Event = (*HealthyEvent)(nil)
	_ Event = (*UnhealthyEvent)(nil)
	_ Event = (*RestartingEvent)(nil)
	_ Event = (*RestartedEvent)(nil)
	_ Event = (*RestartFailedEvent)(nil)
)

// HealthyEvent is emitted after a successful probe.
type HealthyEvent struct {
	ProviderName string
	At           time.Time
}

func (e *HealthyEvent) EventType() EventType { return EventHealthy }
func (e *HealthyEvent) Provider() string     { return e.ProviderName }
func (e *HealthyEvent) Time() time.Time      { return e.At }

// UnhealthyEvent is emitted when a probe fails or the process exits unexpectedly.
type UnhealthyEvent struct {
	ProviderName string
	Err          error
	At           time.Time
}

func (e *UnhealthyEvent) EventType() EventType { return EventUnhealthy }
func (e *UnhealthyEvent) Provider() string     { return e.ProviderName }
func (e *UnhealthyEvent) Time() time.Time      { return e.At }

// RestartingEvent is emitted before restart attempt number Attempt.
type RestartingEvent struct {
	ProviderName string
	Attempt      int
	At           time.Time
}

func (e *RestartingEvent) EventType() EventType { return EventRestarting }
func (e *RestartingEvent) Provider() string     { return e.ProviderName }
func (e *RestartingEvent) Time() time.Time      { return e.At }

// RestartedEvent is emitted after a restart reconnected successfully.
type RestartedEvent struct {
	ProviderName string
	At           time.Time
}

func (e *RestartedEvent) EventType() EventType { return EventRestarted }
func (e *RestartedEvent) Provider() string     { return e.ProviderName }
func (e *RestartedEvent) Time() time.Time      { return e.At }

// RestartFailedEvent is emitted once when a provider runs out of restart attempts.
type RestartFailedEvent struct {
	ProviderName string
	Err          error
	At           time.Time
}

func (e *RestartFailedEvent) EventType() EventType { return EventRestartFailed }
func (e *RestartFailedEvent) Provider() string     { return e.ProviderName }
func (e *RestartFailedEvent) Time() time.Time      { return e.At }
