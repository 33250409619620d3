// Package health holds the per-provider health records and the lifecycle
// events the supervisor publishes.
//
// The Registry is a plain data cache: the supervisor writes transitions into
// it and callers read snapshots out of it. Uptime is derived at read time from
// the stored connection start, never accumulated.
//
// Events are concrete types behind the Event interface. Use a type switch to
// inspect the payload:
//
//	dispatcher.Subscribe(func(e health.Event) {
//		switch ev := e.(type) {
//		case *health.RestartingEvent:
//			log.Printf("%s restarting, attempt %d", ev.ProviderName, ev.Attempt)
//		case *health.RestartFailedEvent:
//			log.Printf("%s gave up: %v", ev.ProviderName, ev.Err)
//		}
//	})
package health
