package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/mcp-supervisor-go/internal/errors"
	"github.com/wagiedev/mcp-supervisor-go/internal/health"
)

// PerformHealthCheck probes name once and returns its updated record.
//
// A successful probe marks the provider healthy and emits a healthy event. A
// failed probe marks it unhealthy, emits an unhealthy event and, if enabled,
// starts the restart loop. A provider without a live connection is not
// probed; its stored record is returned as is, or an unknown-status record if
// the provider is not tracked.
func (s *Supervisor) PerformHealthCheck(ctx context.Context, name string) health.Record {
	s.mu.Lock()

	var (
		e    *entry
		conn *connection
	)

	if e = s.entries[name]; e != nil {
		conn = e.conn
	}

	s.mu.Unlock()

	if conn != nil {
		s.probe(ctx, e, conn)
	}

	rec, ok := s.registry.Get(name)
	if !ok {
		return health.Record{ProviderName: name, Status: health.StatusUnknown}
	}

	return rec
}

// CheckAllServersHealth probes every connected provider concurrently.
// Records are returned in provider name order.
func (s *Supervisor) CheckAllServersHealth(ctx context.Context) []health.Record {
	names := s.GetConnectedServers()
	records := make([]health.Record, len(names))

	eg, egCtx := errgroup.WithContext(ctx)

	for i, name := range names {
		eg.Go(func() error {
			records[i] = s.PerformHealthCheck(egCtx, name)

			return nil
		})
	}

	_ = eg.Wait()

	return records
}

// probe pings conn and applies the outcome if conn is still current. It
// reports false, without sending anything, if conn was not current.
func (s *Supervisor) probe(ctx context.Context, e *entry, conn *connection) bool {
	if !s.beginProbe(e, conn) {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	start := time.Now()
	_, err := conn.transport.SendRequest(probeCtx, methodPing, &mcp.PingParams{})

	if !s.isCurrent(e, conn) {
		conn.log.Debug("Discarding probe result of stale connection", "error", err)

		return true
	}

	if err != nil {
		conn.log.Warn("Health check failed", "error", err)
		s.markFailed(e, conn, fmt.Errorf("health check failed: %w", err))

		return true
	}

	conn.log.Debug("Health check passed", "latency", time.Since(start))

	if s.registry.MarkHealthy(e.name) {
		s.emit(&health.HealthyEvent{ProviderName: e.name, At: time.Now()})
	}

	return true
}

// beginProbe claims a probe of conn. The check runs under the supervisor
// lock, so a probe is either claimed before Disconnect takes the lock or not
// at all.
func (s *Supervisor) beginProbe(e *entry, conn *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(e, conn) || e.ctx.Err() != nil {
		return false
	}

	if s.probeHook != nil {
		s.probeHook(e.name)
	}

	return true
}

// healthLoop probes conn every interval until ctx ends or conn is replaced.
func (s *Supervisor) healthLoop(ctx context.Context, e *entry, conn *connection, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	conn.log.Debug("Health loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			conn.log.Debug("Health loop stopped")

			return
		case <-ticker.C:
			if !s.probe(ctx, e, conn) {
				conn.log.Debug("Health loop stopped, connection no longer current")

				return
			}
		}
	}
}

// watchExit waits for conn's process to terminate or for its transport to
// close underneath it, for example when the provider closes stdout but keeps
// running.
func (s *Supervisor) watchExit(e *entry, conn *connection) {
	select {
	case <-conn.proc.Done():
	case <-conn.transport.Done():
	}

	select {
	case <-conn.proc.Done():
		if conn.proc.Killed() {
			return
		}

		s.handleUnexpectedExit(e, conn, fmt.Errorf("provider process exited unexpectedly: %w", exitCause(conn.proc)))
	default:
		s.handleUnexpectedExit(e, conn, fmt.Errorf("provider output stream closed: %w", conn.transport.Err()))
	}
}

// handleUnexpectedExit reports a connection that ended without anybody
// asking for it. A process left running without a usable transport is
// killed. Ends of replaced connections are ignored.
func (s *Supervisor) handleUnexpectedExit(e *entry, conn *connection, cause error) {
	s.mu.Lock()

	if s.entries[e.name] != e || e.conn != conn || conn.exited {
		s.mu.Unlock()

		return
	}

	conn.exited = true

	s.mu.Unlock()

	select {
	case <-conn.proc.Done():
	default:
		if err := conn.proc.Kill(); err != nil {
			conn.log.Warn("Failed to kill provider process", "error", err)
		}
	}

	conn.log.Warn("Provider connection lost", "error", cause)

	s.markFailed(e, conn, cause)
}

// isCurrent reports whether conn is e's live connection and nothing is
// already handling its failure.
func (s *Supervisor) isCurrent(e *entry, conn *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentLocked(e, conn)
}

// currentLocked is isCurrent for callers holding s.mu.
func (s *Supervisor) currentLocked(e *entry, conn *connection) bool {
	return s.entries[e.name] == e && e.conn == conn && !conn.exited && !e.restarting
}

// markFailed records a failure of conn and starts the restart loop if
// auto-restart is enabled and no loop is running.
func (s *Supervisor) markFailed(e *entry, conn *connection, cause error) {
	s.mu.Lock()

	if s.entries[e.name] != e || e.conn != conn {
		s.mu.Unlock()

		return
	}

	if e.restarting {
		s.mu.Unlock()
		conn.log.Debug("Restart already in progress, ignoring failure", "error", cause)

		return
	}

	restart := e.cfg.AutoRestartEnabled()
	e.restarting = restart

	s.mu.Unlock()

	if s.registry.MarkUnhealthy(e.name, cause) {
		s.emit(&health.UnhealthyEvent{ProviderName: e.name, Err: cause, At: time.Now()})
	}

	if restart {
		s.wg.Go(func() { s.attemptRestart(e) })
	}
}

// attemptRestart drives e through restart attempts until one succeeds, the
// limit is reached, or the provider is disconnected.
func (s *Supervisor) attemptRestart(e *entry) {
	for {
		s.mu.Lock()

		if s.entries[e.name] != e || e.ctx.Err() != nil {
			e.restarting = false
			s.mu.Unlock()

			return
		}

		cfg := e.cfg
		limit := cfg.RestartLimit()
		attempt, ok := nextAttempt(e.restartCount, limit)
		old := e.conn
		e.conn = nil

		if !ok {
			s.mu.Unlock()

			s.teardown(old)
			s.giveUp(e, fmt.Errorf("%w (%d)", errors.ErrMaxRestartsExceeded, limit))
			s.stopRestarting(e)

			return
		}

		e.restartCount = attempt

		s.mu.Unlock()

		e.log.Info("Restarting provider", "attempt", attempt, "max_attempts", limit)

		s.registry.MarkRestarting(e.name, attempt)
		s.emit(&health.RestartingEvent{ProviderName: e.name, Attempt: attempt, At: time.Now()})
		s.teardown(old)

		if !sleepContext(e.ctx, restartDelay(s.opts.RestartBaseDelay, attempt)) {
			s.stopRestarting(e)

			return
		}

		conn, err := s.establish(e.ctx, e, cfg)
		if err == nil {
			err = s.install(e, conn)
			if err != nil {
				s.stopRestarting(e)

				return
			}

			e.log.Info("Provider restarted", "attempt", attempt, "conn", conn.id)
			s.emit(&health.RestartedEvent{ProviderName: e.name, At: time.Now()})

			return
		}

		e.log.Warn("Restart attempt failed", "attempt", attempt, "error", err)

		if e.ctx.Err() != nil {
			s.stopRestarting(e)

			return
		}

		if attempt >= limit {
			s.giveUp(e, fmt.Errorf("%w: attempt %d: %w", errors.ErrMaxRestartsExceeded, attempt, err))
			s.stopRestarting(e)

			return
		}

		s.registry.MarkUnhealthy(e.name, err)

		if !sleepContext(e.ctx, s.opts.RestartRetryDelay) {
			s.stopRestarting(e)

			return
		}
	}
}

// giveUp moves e into the terminal restart_failed state.
func (s *Supervisor) giveUp(e *entry, cause error) {
	e.log.Error("Provider restart failed, giving up", "error", cause)

	if s.registry.MarkRestartFailed(e.name, cause) {
		s.emit(&health.RestartFailedEvent{ProviderName: e.name, Err: cause, At: time.Now()})
	}
}

func (s *Supervisor) stopRestarting(e *entry) {
	s.mu.Lock()
	e.restarting = false
	s.mu.Unlock()
}

func (s *Supervisor) emit(ev health.Event) {
	s.events.Emit(ev)
}

// nextAttempt numbers the restart attempt after count previous ones and
// reports whether it is within limit.
func nextAttempt(count, limit int) (int, bool) {
	attempt := count + 1

	return attempt, attempt <= limit
}

// restartDelay is the wait before restart attempt number attempt.
func restartDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// sleepContext waits for d and reports false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
