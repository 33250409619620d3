package supervisor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/wagiedev/mcp-supervisor-go/internal/config"
	"github.com/wagiedev/mcp-supervisor-go/internal/errors"
	"github.com/wagiedev/mcp-supervisor-go/internal/health"
	"github.com/wagiedev/mcp-supervisor-go/internal/subprocess"
	"github.com/wagiedev/mcp-supervisor-go/internal/transport"
)

const (
	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodPing        = "ping"
)

// Supervisor manages provider connections, their health, and restarts.
type Supervisor struct {
	log  *slog.Logger
	opts config.Options

	registry *health.Registry
	events   *health.Dispatcher

	// Collapses concurrent Connect calls for the same name.
	connecting singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	// Background goroutines: exit watchers, health loops, restart loops.
	wg sync.WaitGroup

	// probeHook, when set, observes every health probe.
	probeHook func(name string)
}

// entry is the tracking state for one provider name. It lives from the
// first Connect until Disconnect, across any number of connections.
type entry struct {
	name string
	cfg  *config.ProviderConfig
	log  *slog.Logger

	conn         *connection
	restartCount int
	restarting   bool

	// ctx is cancelled by Disconnect and aborts everything in flight.
	ctx    context.Context
	cancel context.CancelFunc
}

// connection is one spawned generation of a provider.
type connection struct {
	id        ulid.ULID
	log       *slog.Logger
	proc      *subprocess.Process
	transport *transport.Transport
	startedAt time.Time
	init      *mcp.InitializeResult

	// exited is set once the process terminated on its own.
	exited bool

	stopHealth context.CancelFunc
}

// New creates a supervisor.
//
// A nil options value, or any unset field, falls back to the defaults in
// package config.
func New(options *config.Options) *Supervisor {
	var opts config.Options
	if options != nil {
		opts = *options
	}

	opts.ApplyDefaults()

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	log = log.With("component", "supervisor")

	return &Supervisor{
		log:      log,
		opts:     opts,
		registry: health.NewRegistry(),
		events:   health.NewDispatcher(log),
		entries:  make(map[string]*entry),
	}
}

// Connect starts the provider described by cfg and returns its transport.
//
// If the provider is already connected the existing transport is returned and
// nothing is spawned. Concurrent calls for the same name share one attempt.
// A provider in the terminal restart_failed state is connected afresh with a
// zeroed restart counter. While a restart loop owns the provider, Connect
// returns errors.ErrRestartInProgress.
//
// Spawn, handshake and the grace period share cfg's connect timeout. If the
// attempt fails, the provider's health record and all tracking are removed.
func (s *Supervisor) Connect(ctx context.Context, cfg *config.ProviderConfig) (*transport.Transport, error) {
	if cfg == nil {
		return nil, &errors.ConfigError{Field: "config", Reason: "is required"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v, err, _ := s.connecting.Do(cfg.Name, func() (any, error) {
		return s.connect(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}

	return v.(*transport.Transport), nil
}

func (s *Supervisor) connect(ctx context.Context, cfg *config.ProviderConfig) (*transport.Transport, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil, errors.ErrSupervisorClosed
	}

	e, exists := s.entries[cfg.Name]

	var stale *connection

	switch {
	case !exists:
		entryCtx, cancel := context.WithCancel(context.Background())
		e = &entry{
			name:   cfg.Name,
			log:    s.log.With("provider", cfg.Name),
			ctx:    entryCtx,
			cancel: cancel,
		}
		s.entries[cfg.Name] = e

	case e.restarting:
		s.mu.Unlock()

		return nil, fmt.Errorf("connect %q: %w", cfg.Name, errors.ErrRestartInProgress)

	case e.conn != nil && !e.conn.exited && e.conn.transport.IsConnected():
		tr := e.conn.transport
		s.mu.Unlock()

		e.log.Debug("Provider already connected")

		return tr, nil

	default:
		// Dead or terminally failed: replace the connection.
		stale = e.conn
		e.conn = nil
	}

	e.cfg = cfg
	e.restartCount = 0
	s.mu.Unlock()

	s.registry.Ensure(cfg.Name)
	s.teardown(stale)

	e.log.Info("Connecting provider", "command", cfg.Command)

	conn, err := s.establish(ctx, e, cfg)
	if err == nil {
		err = s.install(e, conn)
	}

	if err != nil {
		e.log.Warn("Provider connect failed", "error", err)
		s.forget(e)

		return nil, err
	}

	e.log.Info("Provider connected",
		"conn", conn.id,
		"pid", conn.proc.Pid(),
		"server", serverName(conn.init),
	)

	return conn.transport, nil
}

// establish spawns the provider and completes the handshake.
func (s *Supervisor) establish(ctx context.Context, e *entry, cfg *config.ProviderConfig) (*connection, error) {
	timeout := cfg.ConnectTimeout()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Disconnect aborts the attempt.
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	id := ulid.Make()
	log := e.log.With("conn", id)

	proc, err := subprocess.Start(attemptCtx, log, subprocess.Config{
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
		Dir:     cfg.Dir,
		Stderr:  s.stderrForwarder(cfg.Name),
	})
	if err != nil {
		return nil, &errors.SpawnError{Provider: cfg.Name, Command: cfg.Command, Err: err}
	}

	tr := transport.New(log)

	conn := &connection{
		id:        id,
		log:       log,
		proc:      proc,
		transport: tr,
	}

	if err := tr.Bind(proc); err != nil {
		s.teardown(conn)

		return nil, &errors.SpawnError{Provider: cfg.Name, Command: cfg.Command, Err: err}
	}

	grace := time.NewTimer(s.opts.SpawnGrace)
	defer grace.Stop()

	select {
	case <-grace.C:
	case <-proc.Done():
		s.teardown(conn)

		return nil, &errors.SpawnError{Provider: cfg.Name, Command: cfg.Command, Err: exitCause(proc)}
	case <-attemptCtx.Done():
		s.teardown(conn)

		return nil, &errors.SpawnError{
			Provider: cfg.Name,
			Command:  cfg.Command,
			Err:      attemptErr(attemptCtx, e, timeout),
		}
	}

	init, err := s.handshake(attemptCtx, conn)
	if err != nil {
		if attemptCtx.Err() != nil {
			err = fmt.Errorf("%w: %w", attemptErr(attemptCtx, e, timeout), err)
		}

		s.teardown(conn)

		return nil, &errors.HandshakeError{Provider: cfg.Name, Err: err}
	}

	conn.init = init
	conn.startedAt = time.Now()

	return conn, nil
}

// handshake sends initialize, awaits the reply, then sends initialized.
func (s *Supervisor) handshake(ctx context.Context, conn *connection) (*mcp.InitializeResult, error) {
	params := &mcp.InitializeParams{
		ProtocolVersion: s.opts.ProtocolVersion,
		Capabilities:    s.opts.Capabilities,
		ClientInfo:      s.opts.ClientInfo(),
	}

	raw, err := conn.transport.SendRequest(ctx, methodInitialize, params)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	var result mcp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}

	conn.log.Debug("Handshake complete",
		"protocol_version", result.ProtocolVersion,
		"server", serverName(&result),
	)

	if err := conn.transport.SendNotification(ctx, methodInitialized, &mcp.InitializedParams{}); err != nil {
		conn.log.Warn("Failed to send initialized notification", "error", err)
	}

	return &result, nil
}

// install makes conn the live connection of e and starts watching it.
func (s *Supervisor) install(e *entry, conn *connection) error {
	s.mu.Lock()

	if s.entries[e.name] != e || e.ctx.Err() != nil {
		s.mu.Unlock()
		s.teardown(conn)

		return fmt.Errorf("connect %q: %w: disconnected while connecting", e.name, errors.ErrProviderNotConnected)
	}

	e.conn = conn
	e.restartCount = 0
	e.restarting = false

	interval := e.cfg.HealthCheckInterval

	var healthCtx context.Context
	if interval > 0 {
		healthCtx, conn.stopHealth = context.WithCancel(e.ctx)
	}

	s.mu.Unlock()

	s.registry.MarkConnected(e.name, conn.startedAt)

	s.wg.Go(func() { s.watchExit(e, conn) })

	if healthCtx != nil {
		s.wg.Go(func() { s.healthLoop(healthCtx, e, conn, interval) })
	}

	return nil
}

// forget removes every trace of a provider whose connect failed.
func (s *Supervisor) forget(e *entry) {
	s.mu.Lock()

	if s.entries[e.name] != e {
		s.mu.Unlock()

		return
	}

	delete(s.entries, e.name)
	conn := e.conn
	e.conn = nil

	s.mu.Unlock()

	e.cancel()
	s.registry.Delete(e.name)
	s.teardown(conn)
}

// teardown stops a connection's health loop, transport and process.
func (s *Supervisor) teardown(conn *connection) {
	if conn == nil {
		return
	}

	if conn.stopHealth != nil {
		conn.stopHealth()
	}

	_ = conn.transport.Disconnect()

	if err := conn.proc.Kill(); err != nil {
		conn.log.Warn("Failed to kill provider process", "error", err)
	}

	conn.log.Debug("Connection torn down")
}

// Disconnect stops the provider and removes all of its state.
//
// The health loop is stopped, pending requests are rejected, the process is
// killed, and any running restart loop is cancelled. Disconnecting an
// unknown provider is a no-op.
func (s *Supervisor) Disconnect(name string) error {
	s.mu.Lock()

	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()

		return nil
	}

	delete(s.entries, name)
	conn := e.conn
	e.conn = nil

	s.mu.Unlock()

	e.cancel()
	s.registry.Delete(name)
	s.teardown(conn)

	e.log.Info("Provider disconnected")

	return nil
}

// Close disconnects every provider and waits for background work to stop.
// After Close, Connect returns errors.ErrSupervisorClosed.
//
// Close must not be called from a health event handler.
func (s *Supervisor) Close() error {
	s.mu.Lock()

	s.closed = true
	names := make([]string, 0, len(s.entries))

	for name := range s.entries {
		names = append(names, name)
	}

	s.mu.Unlock()

	var eg errgroup.Group

	for _, name := range names {
		eg.Go(func() error { return s.Disconnect(name) })
	}

	err := eg.Wait()

	s.wg.Wait()

	return err
}

// IsConnected reports whether name has a live connection.
func (s *Supervisor) IsConnected(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]

	return ok && e.conn != nil && !e.conn.exited && e.conn.transport.IsConnected()
}

// GetConnectedServers returns the names of live providers in sorted order.
func (s *Supervisor) GetConnectedServers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))

	for name, e := range s.entries {
		if e.conn != nil && !e.conn.exited && e.conn.transport.IsConnected() {
			names = append(names, name)
		}
	}

	slices.Sort(names)

	return names
}

// GetTransport returns the live transport of name.
func (s *Supervisor) GetTransport(name string) (*transport.Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok || e.conn == nil {
		return nil, false
	}

	return e.conn.transport, true
}

// GetServerInfo returns the initialize result of name's live connection.
func (s *Supervisor) GetServerInfo(name string) (*mcp.InitializeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok || e.conn == nil {
		return nil, false
	}

	return e.conn.init, true
}

// GetServerHealth returns the health record of name.
func (s *Supervisor) GetServerHealth(name string) (health.Record, bool) {
	return s.registry.Get(name)
}

// GetAllServerHealth returns every health record ordered by provider name.
func (s *Supervisor) GetAllServerHealth() []health.Record {
	return s.registry.All()
}

// GetRestartCount returns the restart attempt counter of name.
func (s *Supervisor) GetRestartCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[name]; ok {
		return e.restartCount
	}

	return 0
}

// ResetRestartCount zeroes the restart counter of name. It does not reconnect.
func (s *Supervisor) ResetRestartCount(name string) {
	s.mu.Lock()

	e, ok := s.entries[name]
	if ok {
		e.restartCount = 0
	}

	s.mu.Unlock()

	if ok {
		s.registry.SetRestartCount(name, 0)
	}
}

// GetServerUptime returns how long name's current connection has been up.
func (s *Supervisor) GetServerUptime(name string) time.Duration {
	return s.registry.Uptime(name)
}

// OnHealthEvent subscribes to health events.
func (s *Supervisor) OnHealthEvent(h health.Handler) health.ListenerID {
	return s.events.Subscribe(h)
}

// OffHealthEvent unsubscribes a handler. It reports whether id was subscribed.
func (s *Supervisor) OffHealthEvent(id health.ListenerID) bool {
	return s.events.Unsubscribe(id)
}

func (s *Supervisor) stderrForwarder(name string) func(string) {
	if s.opts.Stderr == nil {
		return nil
	}

	return func(line string) { s.opts.Stderr(name, line) }
}

// attemptErr explains why a connect attempt's context ended.
func attemptErr(ctx context.Context, e *entry, timeout time.Duration) error {
	switch {
	case e.ctx.Err() != nil:
		return fmt.Errorf("%w: disconnected while connecting", errors.ErrProviderNotConnected)
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", errors.ErrConnectTimeout, timeout)
	default:
		return ctx.Err()
	}
}

// exitCause returns the process exit error, or a generic one for a clean exit.
func exitCause(proc *subprocess.Process) error {
	if err := proc.Err(); err != nil {
		return err
	}

	return &errors.ProcessExitError{ExitCode: 0}
}

func serverName(init *mcp.InitializeResult) string {
	if init == nil || init.ServerInfo == nil {
		return ""
	}

	return init.ServerInfo.Name
}
