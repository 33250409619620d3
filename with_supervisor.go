package mcpsup

import "context"

// WithSupervisor manages supervisor lifecycle with automatic cleanup.
//
// This helper creates a supervisor with the provided options, executes the
// callback function, and ensures every provider is stopped via Close() when
// done.
//
// If the callback returns an error, it is returned to the caller.
// If Close() fails, a warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := mcpsup.WithSupervisor(ctx, func(sup mcpsup.Supervisor) error {
//	    if _, err := sup.Connect(ctx, cfg); err != nil {
//	        return err
//	    }
//	    for _, rec := range sup.CheckAllServersHealth(ctx) {
//	        fmt.Println(rec.ProviderName, rec.Status)
//	    }
//	    return nil
//	},
//	    mcpsup.WithLogger(log),
//	)
func WithSupervisor(ctx context.Context, fn func(Supervisor) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	sup := NewSupervisor(opts...)

	defer func() {
		if closeErr := sup.Close(); closeErr != nil {
			log.Warn("failed to close supervisor", "error", closeErr)
		}
	}()

	return fn(sup)
}
