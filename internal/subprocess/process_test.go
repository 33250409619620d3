package subprocess

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sdkerrors "github.com/wagiedev/mcp-supervisor-go/internal/errors"
)

func requireShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func startShell(t *testing.T, script string, cfg Config) *Process {
	t.Helper()

	cfg.Command = "sh"
	cfg.Args = []string{"-c", script}

	p, err := Start(context.Background(), slog.New(slog.DiscardHandler), cfg)
	require.NoError(t, err)

	t.Cleanup(func() { _ = p.Kill() })

	return p
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestStart_EchoesStdinToStdout(t *testing.T) {
	requireShell(t)

	p := startShell(t, "read line; echo \"$line\"", Config{})

	_, err := io.WriteString(p.Stdin(), `{"jsonrpc":"2.0","method":"ping"}`+"\n")
	require.NoError(t, err)

	reader := bufio.NewReader(p.Stdout())
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, `{"jsonrpc":"2.0","method":"ping"}`+"\n", line)

	waitDone(t, p)

	exitErr, ok := errors.AsType[*sdkerrors.ProcessExitError](p.Err())
	require.True(t, ok, "a clean exit is still unexpected for a provider")
	require.Equal(t, 0, exitErr.ExitCode)
}

func TestStart_StdoutSurvivesWait(t *testing.T) {
	requireShell(t)

	p := startShell(t, "echo first; echo second", Config{})

	waitDone(t, p)

	data, err := io.ReadAll(p.Stdout())
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(data))
}

func TestStart_NonexistentCommand(t *testing.T) {
	_, err := Start(context.Background(), slog.New(slog.DiscardHandler), Config{
		Command: "/nonexistent/provider-binary",
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "start process")
}

func TestStart_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Start(ctx, slog.New(slog.DiscardHandler), Config{Command: "sh"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExit_CapturesCodeAndStderrTail(t *testing.T) {
	requireShell(t)

	var (
		mu    sync.Mutex
		lines []string
	)

	p := startShell(t, "echo 'boot failed' >&2; echo 'bad config' >&2; exit 3", Config{
		Stderr: func(line string) {
			mu.Lock()
			defer mu.Unlock()

			lines = append(lines, line)
		},
	})

	waitDone(t, p)

	exitErr, ok := errors.AsType[*sdkerrors.ProcessExitError](p.Err())
	require.True(t, ok)
	require.Equal(t, 3, exitErr.ExitCode)
	require.Empty(t, exitErr.Signal)
	require.Equal(t, "boot failed\nbad config", exitErr.Stderr)

	var execErr *exec.ExitError
	require.ErrorAs(t, exitErr, &execErr)

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []string{"boot failed", "bad config"}, lines)
}

func TestStderrTail_KeepsMostRecentLines(t *testing.T) {
	requireShell(t)

	p := startShell(t, "i=0; while [ $i -lt 30 ]; do echo line$i >&2; i=$((i+1)); done; exit 1", Config{})

	waitDone(t, p)

	tail := strings.Split(p.StderrTail(), "\n")
	require.Len(t, tail, maxStderrTailLines)
	require.Equal(t, "line10", tail[0])
	require.Equal(t, "line29", tail[len(tail)-1])
}

func TestKill_IsIntentionalAndIdempotent(t *testing.T) {
	requireShell(t)

	p := startShell(t, "sleep 30", Config{})

	require.NoError(t, p.Kill())
	waitDone(t, p)

	require.True(t, p.Killed())
	require.NoError(t, p.Err())
	require.NoError(t, p.Kill())
}

func TestKill_AfterExit(t *testing.T) {
	requireShell(t)

	p := startShell(t, "exit 0", Config{})

	waitDone(t, p)

	require.NoError(t, p.Kill())
}

func TestExit_ReportsSignal(t *testing.T) {
	requireShell(t)

	p := startShell(t, "kill -9 $$", Config{})

	waitDone(t, p)

	exitErr, ok := errors.AsType[*sdkerrors.ProcessExitError](p.Err())
	require.True(t, ok)
	require.Equal(t, "killed", exitErr.Signal)
	require.Equal(t, -1, exitErr.ExitCode)
}

func TestStart_PassesEnvironmentAndDir(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()

	p := startShell(t, `echo "$PROVIDER_TOKEN"; pwd`, Config{
		Env: map[string]string{"PROVIDER_TOKEN": "abc123"},
		Dir: dir,
	})

	waitDone(t, p)

	data, err := io.ReadAll(p.Stdout())
	require.NoError(t, err)

	out := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, out, 2)
	require.Equal(t, "abc123", out[0])
	require.True(t, strings.HasSuffix(out[1], dirBase(dir)), "pwd %q in %q", out[1], dir)
}

func dirBase(dir string) string {
	parts := strings.Split(strings.TrimRight(dir, "/"), "/")

	return parts[len(parts)-1]
}

func TestBuildEnvironment(t *testing.T) {
	t.Setenv("MCPSUP_TEST_EXISTING", "old")

	env := BuildEnvironment(map[string]string{
		"MCPSUP_TEST_EXISTING": "new",
		"MCPSUP_TEST_ADDED":    "added",
	})

	require.NotContains(t, env, "MCPSUP_TEST_EXISTING=old")
	require.Contains(t, env, "MCPSUP_TEST_EXISTING=new")
	require.Contains(t, env, "MCPSUP_TEST_ADDED=added")

	count := 0

	for _, kv := range env {
		if strings.HasPrefix(kv, "MCPSUP_TEST_EXISTING=") {
			count++
		}
	}

	require.Equal(t, 1, count)

	added := slices.Index(env, "MCPSUP_TEST_ADDED=added")
	existing := slices.Index(env, "MCPSUP_TEST_EXISTING=new")
	require.Less(t, added, existing, "overrides are appended in key order")
}

func TestBuildEnvironment_NoOverrides(t *testing.T) {
	t.Setenv("MCPSUP_TEST_KEEP", "1")

	require.Contains(t, BuildEnvironment(nil), "MCPSUP_TEST_KEEP=1")
}
