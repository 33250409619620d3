// Package mcpsup supervises tool providers that run as subprocesses and speak
// newline-delimited JSON-RPC 2.0 over their standard streams.
//
// A Supervisor spawns each configured provider, performs the initialize
// handshake, probes it with ping on an interval, and restarts it with a
// linear backoff when it crashes or stops answering. Every change of health
// is recorded and broadcast to subscribers.
//
// # Basic Usage
//
//	sup := mcpsup.NewSupervisor(
//	    mcpsup.WithLogger(slog.Default()),
//	)
//	defer sup.Close()
//
//	tr, err := sup.Connect(ctx, &mcpsup.ProviderConfig{
//	    Name:                "files",
//	    Command:             "/usr/local/bin/files-provider",
//	    HealthCheckInterval: 30 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	raw, err := tr.SendRequest(ctx, "tools/list", map[string]any{})
//
// Or let WithSupervisor handle the lifecycle:
//
//	err := mcpsup.WithSupervisor(ctx, func(sup mcpsup.Supervisor) error {
//	    _, err := sup.Connect(ctx, cfg)
//	    return err
//	})
//
// # Health Events
//
// Subscribe to health transitions with OnHealthEvent:
//
//	id := sup.OnHealthEvent(func(e mcpsup.HealthEvent) {
//	    switch ev := e.(type) {
//	    case *mcpsup.UnhealthyEvent:
//	        log.Printf("%s unhealthy: %v", ev.ProviderName, ev.Err)
//	    case *mcpsup.RestartFailedEvent:
//	        log.Printf("%s gave up: %v", ev.ProviderName, ev.Err)
//	    }
//	})
//	defer sup.OffHealthEvent(id)
//
// Handlers run synchronously on the goroutine that observed the transition.
// A panicking handler is recovered and logged; the others still run.
//
// # Restarts
//
// When auto-restart is enabled (the default), restart attempt N waits N times
// the base delay (1s) before reconnecting. A failed reconnect pauses for the
// retry delay (5s) before the next attempt. After MaxRestartAttempts failed
// attempts (default 3) the provider enters the terminal restart_failed state
// until the caller connects it again. A successful restart resets the count.
//
// # Tools
//
// NewToolCatalog lists the tools of every connected provider, validates call
// arguments against each tool's input schema, and keeps itself current as
// providers restart:
//
//	cat := mcpsup.NewToolCatalog(sup, nil)
//	defer cat.Close()
//
//	if err := cat.RefreshAll(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := cat.CallTool(ctx, "files", "read", map[string]any{"path": "README.md"})
//
// # Error Handling
//
// Failures carry typed errors:
//
//	_, err := sup.Connect(ctx, cfg)
//	if spawnErr, ok := errors.AsType[*mcpsup.SpawnError](err); ok {
//	    log.Fatalf("could not start %s: %v", spawnErr.Command, spawnErr.Err)
//	}
//	if errors.Is(err, mcpsup.ErrConnectTimeout) {
//	    log.Fatal("provider did not finish the handshake in time")
//	}
//
// # Logging
//
// The supervisor is silent by default. WithLogger enables structured logs;
// WithStderr receives every stderr line of every provider.
package mcpsup
