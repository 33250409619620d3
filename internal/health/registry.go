package health

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Status is the health state of a provider.
type Status string

const (
	// StatusUnknown is the state of a provider that has not completed a connect.
	StatusUnknown Status = "unknown"
	// StatusHealthy means the last handshake or probe succeeded.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy means the last probe failed or the process exited.
	StatusUnhealthy Status = "unhealthy"
	// StatusRestarting means a restart loop currently owns the provider.
	StatusRestarting Status = "restarting"
	// StatusRestartFailed is terminal until the caller reconnects or resets
	// the restart counter.
	StatusRestartFailed Status = "restart_failed"
)

// Record is a snapshot of one provider's health.
type Record struct {
	ProviderName string        `json:"providerName"`
	Status       Status        `json:"status"`
	LastCheck    time.Time     `json:"lastCheck"`
	LastError    string        `json:"lastError,omitempty"`
	RestartCount int           `json:"restartCount"`
	Uptime       time.Duration `json:"uptime"`
}

type record struct {
	Record

	startedAt time.Time
}

// Registry stores one Record per provider name.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// Ensure creates an unknown-status record for name if none exists.
// It reports whether a record was created.
func (r *Registry) Ensure(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[name]; ok {
		return false
	}

	r.records[name] = &record{Record: Record{
		ProviderName: name,
		Status:       StatusUnknown,
		LastCheck:    r.now(),
	}}

	return true
}

// MarkHealthy sets status healthy and clears the last error.
func (r *Registry) MarkHealthy(name string) bool {
	return r.update(name, func(rec *record) {
		rec.Status = StatusHealthy
		rec.LastError = ""
	})
}

// MarkConnected records a successful connect that started at startedAt:
// status healthy, no error, and a restart count of zero.
func (r *Registry) MarkConnected(name string, startedAt time.Time) bool {
	return r.update(name, func(rec *record) {
		rec.Status = StatusHealthy
		rec.LastError = ""
		rec.RestartCount = 0
		rec.startedAt = startedAt
	})
}

// MarkUnhealthy sets status unhealthy with the failure that caused it.
func (r *Registry) MarkUnhealthy(name string, err error) bool {
	return r.update(name, func(rec *record) {
		rec.Status = StatusUnhealthy
		rec.LastError = errString(err)
	})
}

// MarkRestarting records restart attempt number attempt. The connection
// start is cleared, so uptime reads zero until the next connect.
func (r *Registry) MarkRestarting(name string, attempt int) bool {
	return r.update(name, func(rec *record) {
		rec.Status = StatusRestarting
		rec.RestartCount = attempt
		rec.startedAt = time.Time{}
	})
}

// MarkRestartFailed records the terminal failure of a restart loop.
func (r *Registry) MarkRestartFailed(name string, err error) bool {
	return r.update(name, func(rec *record) {
		rec.Status = StatusRestartFailed
		rec.LastError = errString(err)
		rec.startedAt = time.Time{}
	})
}

// SetRestartCount overwrites the mirrored restart counter.
func (r *Registry) SetRestartCount(name string, n int) bool {
	return r.update(name, func(rec *record) {
		rec.RestartCount = n
	})
}

// Get returns the record for name.
func (r *Registry) Get(name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	if !ok {
		return Record{}, false
	}

	return r.snapshot(rec), true
}

// All returns every record, ordered by provider name.
func (r *Registry) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, r.snapshot(rec))
	}

	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.ProviderName, b.ProviderName)
	})

	return out
}

// Uptime returns how long the current connection of name has been up.
func (r *Registry) Uptime(name string) time.Duration {
	rec, ok := r.Get(name)
	if !ok {
		return 0
	}

	return rec.Uptime
}

// Delete removes the record for name.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, name)
}

func (r *Registry) update(name string, fn func(*record)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return false
	}

	fn(rec)
	rec.LastCheck = r.now()

	return true
}

func (r *Registry) snapshot(rec *record) Record {
	out := rec.Record
	if !rec.startedAt.IsZero() {
		out.Uptime = r.now().Sub(rec.startedAt)
	}

	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
