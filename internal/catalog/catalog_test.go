package catalog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/mcp-supervisor-go/internal/config"
	sdkerrors "github.com/wagiedev/mcp-supervisor-go/internal/errors"
	"github.com/wagiedev/mcp-supervisor-go/internal/health"
	"github.com/wagiedev/mcp-supervisor-go/internal/supervisor"
	"github.com/wagiedev/mcp-supervisor-go/internal/testutil/fakeprovider"
)

func TestMain(m *testing.M) {
	fakeprovider.RunIfRequested()
	os.Exit(m.Run())
}

func setup(t *testing.T, env map[string]string) (*supervisor.Supervisor, *Catalog) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake providers rely on re-executing the test binary with POSIX pipes")
	}

	sup := supervisor.New(&config.Options{
		Logger:            slog.New(slog.DiscardHandler),
		SpawnGrace:        20 * time.Millisecond,
		RestartBaseDelay:  10 * time.Millisecond,
		RestartRetryDelay: 20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = sup.Close() })

	cat := New(slog.New(slog.DiscardHandler), sup)
	t.Cleanup(cat.Close)

	_, err := sup.Connect(context.Background(), fakeprovider.Config("echo", fakeprovider.ModeEcho, env))
	require.NoError(t, err)

	return sup, cat
}

func toolNames(tools []*Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.QualifiedName())
	}

	return names
}

func TestRefresh_PagesThroughTools(t *testing.T) {
	_, cat := setup(t, nil)

	tools, err := cat.Refresh(context.Background(), "echo")
	require.NoError(t, err)
	require.Equal(t, []string{"echo/add", "echo/echo"}, toolNames(tools))
	require.Equal(t, []string{"echo/add", "echo/echo"}, toolNames(cat.Tools()))

	tool, ok := cat.Lookup("echo", "echo")
	require.True(t, ok)
	require.Equal(t, "Returns its input", tool.Description)

	_, ok = cat.Lookup("echo", "missing")
	require.False(t, ok)
}

func TestRefresh_NotConnected(t *testing.T) {
	_, cat := setup(t, nil)

	_, err := cat.Refresh(context.Background(), "ghost")
	require.ErrorIs(t, err, sdkerrors.ErrProviderNotConnected)
}

func TestRefreshAll(t *testing.T) {
	sup, cat := setup(t, nil)

	_, err := sup.Connect(context.Background(), fakeprovider.Config("other", fakeprovider.ModeEcho, nil))
	require.NoError(t, err)

	require.NoError(t, cat.RefreshAll(context.Background()))
	require.Equal(t,
		[]string{"echo/add", "echo/echo", "other/add", "other/echo"},
		toolNames(cat.Tools()),
	)
}

func TestCallTool(t *testing.T) {
	_, cat := setup(t, nil)

	_, err := cat.Refresh(context.Background(), "echo")
	require.NoError(t, err)

	result, err := cat.CallTool(context.Background(), "echo", "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	require.Equal(t, "hello", text.Text)

	result, err = cat.CallTool(context.Background(), "echo", "add", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"sum": float64(5)}, result.StructuredContent)
}

func TestCallTool_InvalidArguments(t *testing.T) {
	_, cat := setup(t, nil)

	_, err := cat.Refresh(context.Background(), "echo")
	require.NoError(t, err)

	_, err = cat.CallTool(context.Background(), "echo", "echo", map[string]any{"text": 42})
	require.ErrorIs(t, err, sdkerrors.ErrInvalidToolArguments)

	_, err = cat.CallTool(context.Background(), "echo", "add", map[string]any{"a": "two", "b": 3})
	require.ErrorIs(t, err, sdkerrors.ErrInvalidToolArguments)
}

func TestCallTool_UnknownTool(t *testing.T) {
	_, cat := setup(t, nil)

	_, err := cat.CallTool(context.Background(), "echo", "echo", nil)
	require.ErrorIs(t, err, sdkerrors.ErrToolNotFound)
}

func TestListChangedTriggersRefresh(t *testing.T) {
	_, cat := setup(t, map[string]string{fakeprovider.AddToolAfterEnv: "500ms"})

	_, err := cat.Refresh(context.Background(), "echo")
	require.NoError(t, err)

	_, ok := cat.Lookup("echo", "reverse")
	require.False(t, ok)

	require.Eventually(t, func() bool {
		_, ok := cat.Lookup("echo", "reverse")

		return ok
	}, 10*time.Second, 20*time.Millisecond)

	result, err := cat.CallTool(context.Background(), "echo", "reverse", map[string]any{"text": "abc"})
	require.NoError(t, err)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	require.Equal(t, "cba", text.Text)
}

func TestHealthEvents_DropTools(t *testing.T) {
	_, cat := setup(t, nil)

	_, err := cat.Refresh(context.Background(), "echo")
	require.NoError(t, err)
	require.Len(t, cat.Tools(), 2)

	cat.handleHealthEvent(&health.UnhealthyEvent{ProviderName: "echo", At: time.Now()})
	require.Empty(t, cat.Tools())
}

func TestHealthEvents_RestartedRefreshes(t *testing.T) {
	_, cat := setup(t, nil)

	cat.handleHealthEvent(&health.RestartedEvent{ProviderName: "echo", At: time.Now()})

	require.Eventually(t, func() bool {
		return len(cat.Tools()) == 2
	}, 10*time.Second, 20*time.Millisecond)
}

func TestTool_ValidateWithoutSchema(t *testing.T) {
	tool := &Tool{Provider: "p", Tool: &mcp.Tool{Name: "free"}}

	require.NoError(t, tool.Validate(nil))
	require.NoError(t, tool.Validate(map[string]any{"anything": true}))
	require.Equal(t, "p/free", tool.QualifiedName())
}

func TestCallTool_DisconnectedProviderDropsTools(t *testing.T) {
	sup, cat := setup(t, nil)

	_, err := cat.Refresh(context.Background(), "echo")
	require.NoError(t, err)

	require.NoError(t, sup.Disconnect("echo"))

	_, err = cat.CallTool(context.Background(), "echo", "echo", map[string]any{"text": "hi"})
	require.ErrorIs(t, err, sdkerrors.ErrProviderNotConnected)

	_, ok := cat.Lookup("echo", "echo")
	require.False(t, ok)
}

func TestTools_OmitsDisconnectedProvider(t *testing.T) {
	sup, cat := setup(t, nil)

	_, err := sup.Connect(context.Background(), fakeprovider.Config("other", fakeprovider.ModeEcho, nil))
	require.NoError(t, err)
	require.NoError(t, cat.RefreshAll(context.Background()))
	require.Len(t, cat.Tools(), 4)

	require.NoError(t, sup.Disconnect("other"))

	require.Equal(t, []string{"echo/add", "echo/echo"}, toolNames(cat.Tools()))

	_, ok := cat.Lookup("other", "echo")
	require.False(t, ok)
}

func TestClose_IgnoresLateEvents(t *testing.T) {
	_, cat := setup(t, nil)

	cat.Close()

	cat.handleHealthEvent(&health.RestartedEvent{ProviderName: "echo", At: time.Now()})
	cat.Close()

	require.Empty(t, cat.Tools())
}
