package transport

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/mcp-supervisor-go/internal/errors"
	"github.com/wagiedev/mcp-supervisor-go/internal/jsonrpc"
)

const (
	// maxLineSize is the largest single message accepted from a provider.
	maxLineSize = 10 * 1024 * 1024 // 10MB
	// notificationQueueSize bounds notifications waiting for listeners.
	notificationQueueSize = 128
	// exitReportGrace is how long stdout EOF waits for the exit status, so
	// pending requests are rejected with the real exit reason.
	exitReportGrace = 250 * time.Millisecond
	// remoteReplyTimeout bounds writing an answer to a provider's request.
	remoteReplyTimeout = 5 * time.Second
)

// Process is the part of a running provider the transport needs.
//
// *subprocess.Process satisfies this interface, but tests can bind any
// pair of pipes.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Done() <-chan struct{}
	Err() error
}

// NotificationHandler receives an unsolicited notification from the provider.
type NotificationHandler func(method string, params json.RawMessage)

// ListenerID identifies a registered notification handler.
type ListenerID uint64

type listener struct {
	id      ListenerID
	handler NotificationHandler
}

// reply is what a pending request eventually receives.
type reply struct {
	msg *jsonrpc.Message
	err error
}

// pendingRequest tracks an outgoing request awaiting its response.
type pendingRequest struct {
	method string
	reply  chan reply
}

// Transport correlates JSON-RPC traffic with one provider process.
type Transport struct {
	log *slog.Logger

	nextID atomic.Int64

	mu       sync.Mutex
	proc     Process
	pending  map[string]*pendingRequest
	closed   bool
	closeErr error

	// Holds one token while a line is being written, so lines never
	// interleave. Waiting senders select on it together with their ctx.
	writeSem chan struct{}

	listenersMu  sync.RWMutex
	listeners    []listener
	nextListener ListenerID

	notifications chan *jsonrpc.Message

	closeOnce sync.Once
	done      chan struct{}
	readDone  chan struct{}
	wg        sync.WaitGroup
}

// New creates an unbound transport.
func New(log *slog.Logger) *Transport {
	return &Transport{
		log:           log.With("component", "transport"),
		pending:       make(map[string]*pendingRequest, 8),
		notifications: make(chan *jsonrpc.Message, notificationQueueSize),
		writeSem:      make(chan struct{}, 1),
		done:          make(chan struct{}),
		readDone:      make(chan struct{}),
	}
}

// Bind attaches the transport to a process and starts reading its output.
//
// A transport can be bound once. The process's exit is watched so that
// IsConnected turns false and pending requests are rejected as soon as it
// terminates.
func (t *Transport) Bind(p Process) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.proc != nil {
		return errors.ErrTransportAlreadyBound
	}

	if t.closed {
		return t.closeErr
	}

	t.proc = p

	t.wg.Add(3)

	go t.readLoop(p)
	go t.notifyLoop()
	go t.watchExit(p)

	t.log.Debug("Transport bound")

	return nil
}

// NextRequestID returns the next request id. Ids start at 1 and are never reused.
func (t *Transport) NextRequestID() int64 {
	return t.nextID.Add(1)
}

// IsConnected reports whether the transport is bound, not disconnected and
// its process is still alive.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.proc == nil || t.closed {
		return false
	}

	select {
	case <-t.proc.Done():
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed when the transport is torn down.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the reason the transport was torn down, or nil while connected.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closeErr
}

// SendRequest sends a request and waits for the matching response.
//
// The result payload is returned raw for the caller to decode. An error
// object from the provider is returned as *errors.ProtocolError. If ctx
// expires first the error matches both errors.ErrRequestTimeout and
// context.DeadlineExceeded. Teardown rejects the request with an error
// matching errors.ErrTransportClosed.
func (t *Transport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.NextRequestID()

	msg, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	key := jsonrpc.IDKey(msg.ID)
	pending := &pendingRequest{method: method, reply: make(chan reply, 1)}

	t.mu.Lock()

	if t.proc == nil {
		t.mu.Unlock()

		return nil, errors.ErrTransportNotConnected
	}

	if t.closed {
		closeErr := t.closeErr
		t.mu.Unlock()

		return nil, closeErr
	}

	t.pending[key] = pending
	t.mu.Unlock()

	t.log.Debug("Sending request", "id", id, "method", method)

	if err := t.write(ctx, msg); err != nil {
		t.removePending(key)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, t.contextError(id, method, ctxErr)
		}

		if closeErr := t.Err(); closeErr != nil {
			return nil, fmt.Errorf("send %s: %w", method, closeErr)
		}

		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case r := <-pending.reply:
		if r.err != nil {
			return nil, r.err
		}

		if r.msg.Error != nil {
			t.log.Debug("Request returned error", "id", id, "method", method, "code", r.msg.Error.Code)

			return nil, r.msg.Error.ProtocolError(method)
		}

		return r.msg.Result, nil

	case <-ctx.Done():
		t.removePending(key)

		return nil, t.contextError(id, method, ctx.Err())
	}
}

// contextError maps the end of a request's context to the returned error.
func (t *Transport) contextError(id int64, method string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		t.log.Debug("Request timed out", "id", id, "method", method)

		return fmt.Errorf("%s: %w: %w", method, errors.ErrRequestTimeout, err)
	}

	return err
}

// SendNotification writes a notification. No reply is expected.
func (t *Transport) SendNotification(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}

	t.mu.Lock()
	bound, closed, closeErr := t.proc != nil, t.closed, t.closeErr
	t.mu.Unlock()

	switch {
	case !bound:
		return errors.ErrTransportNotConnected
	case closed:
		return closeErr
	}

	t.log.Debug("Sending notification", "method", method)

	if err := t.write(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	return nil
}

// OnNotification registers a handler for provider notifications.
//
// Handlers run one notification at a time, in arrival order, on a goroutine
// separate from the read loop, so a handler may issue requests on the same
// transport. A panicking handler is recovered and logged.
func (t *Transport) OnNotification(h NotificationHandler) ListenerID {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	t.nextListener++
	t.listeners = append(t.listeners, listener{id: t.nextListener, handler: h})

	return t.nextListener
}

// OffNotification removes a handler. It reports whether the id was registered.
func (t *Transport) OffNotification(id ListenerID) bool {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	for i, l := range t.listeners {
		if l.id == id {
			t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)

			return true
		}
	}

	return false
}

// Disconnect stops the transport.
//
// Every pending request is rejected with errors.ErrTransportClosed before
// Disconnect returns. The process's stdin and stdout are closed; the process
// itself is left to its owner. Disconnect is idempotent.
func (t *Transport) Disconnect() error {
	t.shutdown(errors.ErrTransportClosed)

	t.mu.Lock()
	bound := t.proc != nil
	t.mu.Unlock()

	if bound {
		<-t.readDone
	}

	return nil
}

// Wait blocks until every background goroutine of the transport has exited.
func (t *Transport) Wait() {
	t.wg.Wait()
}

// shutdown tears the transport down once, recording reason as the cause.
func (t *Transport) shutdown(reason error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()

		t.closed = true
		t.closeErr = reason
		pending := t.pending
		t.pending = make(map[string]*pendingRequest)
		proc := t.proc

		t.mu.Unlock()

		for key, p := range pending {
			t.log.Debug("Rejecting pending request", "id", key, "method", p.method)
			p.reply <- reply{err: reason}
		}

		close(t.done)

		if proc != nil {
			_ = proc.Stdin().Close()
			_ = proc.Stdout().Close()
		}

		t.log.Debug("Transport closed", "reason", reason, "rejected", len(pending))
	})
}

func (t *Transport) removePending(key string) {
	t.mu.Lock()
	delete(t.pending, key)
	t.mu.Unlock()
}

// write sends one line to the provider's stdin.
//
// The write itself runs on its own goroutine so a provider that stops reading
// cannot hold the caller past ctx. An abandoned write keeps the line lock
// until it completes or teardown closes stdin.
func (t *Transport) write(ctx context.Context, msg *jsonrpc.Message) error {
	line, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case t.writeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return t.Err()
	}

	// Nothing is written once teardown has started.
	select {
	case <-t.done:
		<-t.writeSem

		return t.Err()
	default:
	}

	t.mu.Lock()
	proc := t.proc
	t.mu.Unlock()

	done := make(chan error, 1)

	go func() {
		defer func() { <-t.writeSem }()

		_, err := proc.Stdin().Write(line)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write to stdin: %w", err)
		}

		return nil
	case <-ctx.Done():
		t.log.Debug("Abandoning stdin write", "method", msg.Method, "error", ctx.Err())

		return ctx.Err()
	}
}

// readLoop parses one message per stdout line until the stream ends.
func (t *Transport) readLoop(p Process) {
	defer t.wg.Done()
	defer close(t.readDone)
	defer t.log.Debug("Transport read loop stopped")

	scanner := bufio.NewScanner(p.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, err := jsonrpc.Decode(line)
		if err != nil {
			t.log.Debug("Skipping malformed line", "error", err, "line", string(line))

			continue
		}

		t.dispatch(msg)
	}

	if err := scanner.Err(); err != nil {
		t.log.Debug("Stdout scanner stopped", "error", err)
	}

	// Stdout usually reaches EOF slightly before the exit status is known.
	select {
	case <-p.Done():
	case <-t.done:
		return
	case <-time.After(exitReportGrace):
	}

	t.shutdown(closeReason(p))
}

// watchExit tears the transport down as soon as the process terminates.
func (t *Transport) watchExit(p Process) {
	defer t.wg.Done()

	select {
	case <-p.Done():
		t.log.Debug("Provider process exited", "error", p.Err())
		t.shutdown(closeReason(p))
	case <-t.done:
	}
}

func closeReason(p Process) error {
	if err := p.Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrTransportClosed, err)
	}

	return errors.ErrTransportClosed
}

func (t *Transport) dispatch(msg *jsonrpc.Message) {
	switch msg.Kind() {
	case jsonrpc.KindResponse:
		t.handleResponse(msg)

	case jsonrpc.KindNotification:
		select {
		case t.notifications <- msg:
		case <-t.done:
		}

	case jsonrpc.KindRequest:
		t.handleRemoteRequest(msg)

	default:
		t.log.Debug("Skipping message with unknown shape")
	}
}

func (t *Transport) handleResponse(msg *jsonrpc.Message) {
	key := jsonrpc.IDKey(msg.ID)

	// Claim the pending request atomically.
	t.mu.Lock()

	pending, exists := t.pending[key]
	if exists {
		delete(t.pending, key)
	}

	t.mu.Unlock()

	if !exists {
		t.log.Warn("No pending request for response", "id", key)

		return
	}

	// Buffered, and we own it now.
	pending.reply <- reply{msg: msg}
}

// handleRemoteRequest answers requests the provider sends to the client.
func (t *Transport) handleRemoteRequest(msg *jsonrpc.Message) {
	var resp *jsonrpc.Message

	switch msg.Method {
	case "ping":
		var err error

		resp, err = jsonrpc.NewResult(msg.ID, struct{}{})
		if err != nil {
			t.log.Error("Failed to build ping response", "error", err)

			return
		}

	default:
		t.log.Debug("Rejecting unsupported request from provider", "method", msg.Method)
		resp = jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeMethodNotFound, "method not found: "+msg.Method)
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteReplyTimeout)
	defer cancel()

	if err := t.write(ctx, resp); err != nil {
		t.log.Debug("Could not answer provider request", "method", msg.Method, "error", err)
	}
}

func (t *Transport) notifyLoop() {
	defer t.wg.Done()

	for {
		select {
		case msg := <-t.notifications:
			t.notify(msg)
		case <-t.done:
			return
		}
	}
}

func (t *Transport) notify(msg *jsonrpc.Message) {
	t.listenersMu.RLock()
	snapshot := append([]listener(nil), t.listeners...)
	t.listenersMu.RUnlock()

	for _, l := range snapshot {
		t.invoke(l, msg)
	}
}

func (t *Transport) invoke(l listener, msg *jsonrpc.Message) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("Notification handler panicked", "method", msg.Method, "listener", l.id, "panic", r)
		}
	}()

	l.handler(msg.Method, msg.Params)
}
