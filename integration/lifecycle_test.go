//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
)

// TestConnect_RealProvider connects a go-sdk server and checks the handshake
// result and a ping round trip.
func TestConnect_RealProvider(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sup := newSupervisor(t)

	_, err := sup.Connect(ctx, calculator("calc"))
	require.NoError(t, err)

	info, ok := sup.GetServerInfo("calc")
	require.True(t, ok)
	require.Equal(t, "calc", info.ServerInfo.Name)
	require.NotNil(t, info.Capabilities.Tools)

	rec := sup.PerformHealthCheck(ctx, "calc")
	require.Equal(t, mcpsup.StatusHealthy, rec.Status)

	require.NoError(t, sup.Disconnect("calc"))
	require.False(t, sup.IsConnected("calc"))
}

// TestRestart_AfterCrash lets the provider crash and waits for the
// supervisor to bring it back.
func TestRestart_AfterCrash(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sup := newSupervisor(t, mcpsup.WithRestartBackoff(100*time.Millisecond, 200*time.Millisecond))

	var (
		mu     sync.Mutex
		events []mcpsup.HealthEventType
	)

	restarted := make(chan struct{}, 1)

	sup.OnHealthEvent(func(e mcpsup.HealthEvent) {
		mu.Lock()
		events = append(events, e.EventType())
		mu.Unlock()

		if e.EventType() == mcpsup.EventRestarted {
			select {
			case restarted <- struct{}{}:
			default:
			}
		}
	})

	cfg := calculator("calc", "-crash-after=500ms")
	cfg.MaxRestartAttempts = 3

	_, err := sup.Connect(ctx, cfg)
	require.NoError(t, err)

	select {
	case <-restarted:
	case <-ctx.Done():
		t.Fatal("provider was not restarted")
	}

	mu.Lock()
	require.Equal(t, []mcpsup.HealthEventType{
		mcpsup.EventUnhealthy,
		mcpsup.EventRestarting,
		mcpsup.EventRestarted,
	}, events[:3])
	mu.Unlock()
}

// TestClose_StopsEveryProvider checks that Close returns promptly with
// several live providers.
func TestClose_StopsEveryProvider(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sup := mcpsup.NewSupervisor()

	for _, name := range []string{"a", "b", "c"} {
		cfg := calculator(name)
		cfg.HealthCheckInterval = 50 * time.Millisecond

		_, err := sup.Connect(ctx, cfg)
		require.NoError(t, err)
	}

	require.Equal(t, []string{"a", "b", "c"}, sup.GetConnectedServers())

	closeStart := time.Now()
	require.NoError(t, sup.Close())
	require.Less(t, time.Since(closeStart), 5*time.Second)

	require.Empty(t, sup.GetConnectedServers())
	require.Empty(t, sup.GetAllServerHealth())
}
