package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wagiedev/mcp-supervisor-go/internal/errors"
)

const (
	// maxStderrTailLines is how many trailing stderr lines are kept for exit reports.
	maxStderrTailLines = 20
	// maxStderrLineSize bounds a single stderr line.
	maxStderrLineSize = 1024 * 1024 // 1MB
	// stderrDrainTimeout bounds how long the exit watcher waits for stderr
	// after the process has exited. A grandchild holding the pipe open must
	// not delay exit reporting.
	stderrDrainTimeout = 500 * time.Millisecond
)

// Config describes how to launch a provider process.
type Config struct {
	// Command is the executable to run.
	Command string
	// Args are passed to Command.
	Args []string
	// Env overrides entries of the ambient environment.
	Env map[string]string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Stderr receives every line the process writes to stderr.
	Stderr func(line string)
}

// Process is a running provider subprocess.
type Process struct {
	log *slog.Logger
	cmd *exec.Cmd

	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	stderrCallback func(string)
	stderrMu       sync.Mutex
	stderrTail     []string

	mu      sync.Mutex
	killed  bool
	exitErr *errors.ProcessExitError

	done chan struct{}
}

// Start launches the configured command.
//
// Stdout and stderr are attached through os.Pipe rather than cmd.StdoutPipe
// so that cmd.Wait never closes a reader the transport is still draining.
// The returned process is watched in the background; Done is closed once
// it has exited and its stderr has been drained.
func Start(ctx context.Context, log *slog.Logger, cfg Config) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log = log.With("component", "subprocess")

	//nolint:gosec // G204: launching the configured provider command is the purpose of this package
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = BuildEnvironment(cfg.Env)
	cmd.Dir = cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()

		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdoutR.Close()
		_ = stdoutW.Close()

		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()

		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			_ = f.Close()
		}

		return nil, fmt.Errorf("start process: %w", err)
	}

	// The child holds its own copies of the write ends.
	_ = stdoutW.Close()
	_ = stderrW.Close()

	p := &Process{
		log:            log.With("pid", cmd.Process.Pid),
		cmd:            cmd,
		stdin:          stdin,
		stdout:         stdoutR,
		stderr:         stderrR,
		stderrCallback: cfg.Stderr,
		done:           make(chan struct{}),
	}

	p.log.Debug("Provider process started", "command", cfg.Command, "args", cfg.Args)

	stderrDone := make(chan struct{})

	go p.scanStderr(stderrDone)
	go p.wait(stderrDone)

	return p, nil
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Stdin returns the writer connected to the process's standard input.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout returns the reader connected to the process's standard output.
func (p *Process) Stdout() io.ReadCloser {
	return p.stdout
}

// Done returns a channel that is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err describes how the process terminated.
//
// It returns nil while the process is running and after an intentional Kill.
// Any other termination, including a clean exit, yields a *ProcessExitError,
// since a provider is expected to run until told to stop.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exitErr == nil {
		return nil
	}

	return p.exitErr
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.killed
}

// Kill terminates the process and marks the shutdown as intentional.
//
// It is safe to call Kill multiple times or after the process has exited.
func (p *Process) Kill() error {
	p.mu.Lock()

	if p.killed {
		p.mu.Unlock()

		return nil
	}

	p.killed = true
	p.mu.Unlock()

	_ = p.stdin.Close()

	select {
	case <-p.done:
		return nil
	default:
	}

	p.log.Debug("Killing provider process")

	if err := p.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill provider process (pid %d): %w", p.Pid(), err)
	}

	return nil
}

// StderrTail returns the most recent stderr lines joined by newlines.
func (p *Process) StderrTail() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	return strings.TrimSpace(strings.Join(p.stderrTail, "\n"))
}

func (p *Process) scanStderr(done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLineSize)

	for scanner.Scan() {
		line := scanner.Text()

		p.stderrMu.Lock()

		p.stderrTail = append(p.stderrTail, line)
		if len(p.stderrTail) > maxStderrTailLines {
			p.stderrTail = p.stderrTail[len(p.stderrTail)-maxStderrTailLines:]
		}

		p.stderrMu.Unlock()

		p.log.Debug("Provider stderr", "line", line)

		if p.stderrCallback != nil {
			p.stderrCallback(line)
		}
	}

	if err := scanner.Err(); err != nil && !stderrors.Is(err, os.ErrClosed) {
		p.log.Debug("Stderr scanner error", "error", err)
	}
}

func (p *Process) wait(stderrDone <-chan struct{}) {
	waitErr := p.cmd.Wait()

	select {
	case <-stderrDone:
	case <-time.After(stderrDrainTimeout):
		p.log.Debug("Stderr not drained after exit, closing")
	}

	// Unblocks the scanner if a grandchild still holds the write end.
	_ = p.stderr.Close()

	p.mu.Lock()

	if !p.killed {
		p.exitErr = p.describeExit(waitErr)
	}

	p.mu.Unlock()

	if p.exitErr != nil {
		p.log.Debug("Provider process exited", "error", p.exitErr)
	} else {
		p.log.Debug("Provider process terminated")
	}

	close(p.done)
}

func (p *Process) describeExit(waitErr error) *errors.ProcessExitError {
	exitErr := &errors.ProcessExitError{
		ExitCode: p.cmd.ProcessState.ExitCode(),
		Stderr:   p.StderrTail(),
	}

	if waitErr != nil {
		exitErr.Err = waitErr
	}

	if status, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		exitErr.Signal = status.Signal().String()
	}

	return exitErr
}

// BuildEnvironment returns the ambient environment with overrides applied.
//
// An override replaces any existing entry with the same key instead of
// appending a duplicate. Overrides are appended in key order.
func BuildEnvironment(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}

	merged := make([]string, 0, len(env)+len(overrides))

	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[key]; replaced {
			continue
		}

		merged = append(merged, kv)
	}

	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		merged = append(merged, key+"="+overrides[key])
	}

	return merged
}
