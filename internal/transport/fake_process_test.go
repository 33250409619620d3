package transport

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/mcp-supervisor-go/internal/jsonrpc"
)

// fakeProcess is an in-memory provider wired to the transport through io.Pipe.
type fakeProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	// received carries every line the transport wrote to stdin.
	received chan *jsonrpc.Message

	done     chan struct{}
	exitOnce sync.Once
	errMu    sync.Mutex
	err      error
}

func newFakeProcess(t *testing.T) *fakeProcess {
	t.Helper()

	p := newStalledProcess(t)

	go func() {
		scanner := bufio.NewScanner(p.stdinR)
		for scanner.Scan() {
			msg, err := jsonrpc.Decode(scanner.Bytes())
			if err != nil {
				continue
			}

			p.received <- msg
		}
	}()

	return p
}

// newStalledProcess returns a fake provider that never reads its stdin, so
// every write to it blocks.
func newStalledProcess(t *testing.T) *fakeProcess {
	t.Helper()

	p := &fakeProcess{
		received: make(chan *jsonrpc.Message, 64),
		done:     make(chan struct{}),
	}

	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()

	t.Cleanup(func() { p.exit(nil) })

	return p
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdoutR }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()

	return p.err
}

// exit simulates process termination with the given exit error.
func (p *fakeProcess) exit(err error) {
	p.exitOnce.Do(func() {
		p.errMu.Lock()
		p.err = err
		p.errMu.Unlock()

		_ = p.stdoutW.Close()
		_ = p.stdinR.Close()

		close(p.done)
	})
}

// send writes a raw line to the transport's stdout.
func (p *fakeProcess) send(t *testing.T, line string) {
	t.Helper()

	_, err := io.WriteString(p.stdoutW, line+"\n")
	require.NoError(t, err)
}

// reply answers a received request with the given result.
func (p *fakeProcess) reply(t *testing.T, req *jsonrpc.Message, result any) {
	t.Helper()

	resp, err := jsonrpc.NewResult(req.ID, result)
	require.NoError(t, err)

	line, err := json.Marshal(resp)
	require.NoError(t, err)

	p.send(t, string(line))
}

// next returns the next message the transport wrote.
func (p *fakeProcess) next(t *testing.T) *jsonrpc.Message {
	t.Helper()

	select {
	case msg := <-p.received:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message from transport")

		return nil
	}
}
