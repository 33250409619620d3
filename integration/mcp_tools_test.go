//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
)

func TestToolCatalog_Calculator(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sup := newSupervisor(t)

	_, err := sup.Connect(ctx, calculator("calc"))
	require.NoError(t, err)

	cat := mcpsup.NewToolCatalog(sup, nil)
	defer cat.Close()

	tools, err := cat.Refresh(ctx, "calc")
	require.NoError(t, err)
	require.Len(t, tools, 6)

	result, err := cat.CallTool(ctx, "calc", "add", map[string]any{"a": 15, "b": 27})
	require.NoError(t, err)
	require.False(t, result.IsError)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	require.Contains(t, text.Text, "42")

	result, err = cat.CallTool(ctx, "calc", "divide", map[string]any{"a": 1, "b": 0})
	require.NoError(t, err)
	require.True(t, result.IsError)

	_, err = cat.CallTool(ctx, "calc", "sqrt", map[string]any{"n": "nine"})
	require.ErrorIs(t, err, mcpsup.ErrInvalidToolArguments)
}
