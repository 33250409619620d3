package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
	"github.com/wagiedev/mcp-supervisor-go/internal/testutil/fakeprovider"
)

func TestMain(m *testing.M) {
	fakeprovider.RunIfRequested()
	os.Exit(m.Run())
}

// writeProviders writes a providers file whose entries re-execute this test
// binary in the given modes.
func writeProviders(t *testing.T, modes map[string]string) string {
	t.Helper()

	var b strings.Builder

	b.WriteString("providers:\n")

	for name, mode := range modes {
		fmt.Fprintf(&b, "  - name: %s\n", name)
		fmt.Fprintf(&b, "    command: %q\n", os.Args[0])
		b.WriteString("    args: [\"-test.run=^$\"]\n")
		b.WriteString("    timeout: 10s\n")
		b.WriteString("    autoRestart: false\n")
		fmt.Fprintf(&b, "    env:\n      %s: %s\n", fakeprovider.ModeEnv, mode)
	}

	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	return path
}

func execute(ctx context.Context, args ...string) (string, error) {
	var out, errOut bytes.Buffer

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)

	err := root.ExecuteContext(ctx)

	return out.String(), err
}

func skipOnWindows(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake providers rely on re-executing the test binary with POSIX pipes")
	}
}

func TestLoadProviders(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
providers:
  - name: files
    command: files-provider
    healthCheckInterval: 30s
    maxRestartAttempts: 5
  - name: search
    command: search-provider
    args: ["--index", "/srv/index"]
`), 0o600))

	providers, err := loadProviders(valid)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	require.Equal(t, "files", providers[0].Name)
	require.Equal(t, 30*time.Second, providers[0].HealthCheckInterval)
	require.Equal(t, 5, providers[0].RestartLimit())
	require.Equal(t, []string{"--index", "/srv/index"}, providers[1].Args)
	require.True(t, providers[1].AutoRestartEnabled())

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte(`
providers:
  - {name: a, command: x}
  - {name: a, command: y}
`), 0o600))

	_, err = loadProviders(dup)
	cfgErr, ok := errors.AsType[*mcpsup.ConfigError](err)
	require.True(t, ok)
	require.Equal(t, "name", cfgErr.Field)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("providers:\n  - name: a\n"), 0o600))

	_, err = loadProviders(invalid)
	_, ok = errors.AsType[*mcpsup.ConfigError](err)
	require.True(t, ok)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("providers: []\n"), 0o600))

	_, err = loadProviders(empty)
	require.ErrorContains(t, err, "lists no providers")

	_, err = loadProviders(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckCmd_Healthy(t *testing.T) {
	skipOnWindows(t)

	path := writeProviders(t, map[string]string{"echo": fakeprovider.ModeEcho})

	out, err := execute(context.Background(), "--config", path, "check")
	require.NoError(t, err)
	require.Contains(t, out, "PROVIDER")
	require.Regexp(t, `echo\s+healthy`, out)
}

func TestCheckCmd_Unhealthy(t *testing.T) {
	skipOnWindows(t)

	path := writeProviders(t, map[string]string{
		"echo":   fakeprovider.ModeEcho,
		"broken": fakeprovider.ModeExit,
	})

	out, err := execute(context.Background(), "--config", path, "check")
	require.ErrorIs(t, err, errUnhealthy)
	require.Regexp(t, `broken\s+failed`, out)
	require.Regexp(t, `echo\s+healthy`, out)
}

func TestToolsCmd(t *testing.T) {
	skipOnWindows(t)

	path := writeProviders(t, map[string]string{"echo": fakeprovider.ModeEcho})

	out, err := execute(context.Background(), "--config", path, "tools")
	require.NoError(t, err)
	require.Contains(t, out, "echo/add")
	require.Contains(t, out, "echo/echo")
	require.Contains(t, out, "Returns its input")
}

func TestWatchCmd_StopsOnCancel(t *testing.T) {
	skipOnWindows(t)

	path := writeProviders(t, map[string]string{"echo": fakeprovider.ModeEcho})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := execute(ctx, "--config", path, "watch")
	require.NoError(t, err)
	require.Contains(t, out, "echo\tconnected")
}

func TestDescribeEvent(t *testing.T) {
	now := time.Now()

	require.Equal(t, "healthy", describeEvent(&mcpsup.HealthyEvent{ProviderName: "p", At: now}))
	require.Equal(t, "restarting (attempt 2)", describeEvent(&mcpsup.RestartingEvent{ProviderName: "p", Attempt: 2, At: now}))
	require.Equal(t, "unhealthy: unknown error", describeEvent(&mcpsup.UnhealthyEvent{ProviderName: "p", At: now}))
	require.Equal(t,
		"restart failed: max restart attempts exceeded",
		describeEvent(&mcpsup.RestartFailedEvent{ProviderName: "p", Err: mcpsup.ErrMaxRestartsExceeded, At: now}),
	)
}
