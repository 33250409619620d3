package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
)

const defaultConfigPath = "providers.yaml"

type cliOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "mcpsup",
		Short:        "Supervise subprocess tool providers",
		SilenceUsage: true,
		// Errors are printed by main so an unhealthy check can exit quietly.
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Providers file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log supervisor activity to stderr")

	root.AddCommand(newCheckCmd(opts), newWatchCmd(opts), newToolsCmd(opts))

	return root
}

// connectResult is the outcome of connecting one provider.
type connectResult struct {
	name string
	err  error
}

// runWithSupervisor loads the providers file, connects every provider
// concurrently, and runs fn. The supervisor is closed when fn returns.
func runWithSupervisor(
	cmd *cobra.Command,
	opts *cliOptions,
	setup func(mcpsup.Supervisor),
	fn func(ctx context.Context, sup mcpsup.Supervisor, results []connectResult) error,
) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	providers, err := loadProviders(opts.configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.verbose)

	return mcpsup.WithSupervisor(ctx, func(sup mcpsup.Supervisor) error {
		if setup != nil {
			setup(sup)
		}

		results := make([]connectResult, len(providers))

		var eg errgroup.Group

		for i, cfg := range providers {
			eg.Go(func() error {
				_, err := sup.Connect(ctx, cfg)
				results[i] = connectResult{name: cfg.Name, err: err}

				return nil
			})
		}

		_ = eg.Wait()

		for _, r := range results {
			if r.err != nil {
				logger.Warn("Provider failed to connect", "provider", r.name, "error", r.err)
			}
		}

		return fn(ctx, sup, results)
	},
		mcpsup.WithLogger(logger),
		mcpsup.WithStderr(stderrLogger(logger)),
	)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// stderrLogger logs provider stderr lines at debug level.
func stderrLogger(logger *slog.Logger) func(provider, line string) {
	return func(provider, line string) {
		logger.Debug("provider stderr", "provider", provider, "line", line)
	}
}

// syncWriter serialises writes from event handlers running on different
// goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = fmt.Fprintf(s.w, format, args...)
}
