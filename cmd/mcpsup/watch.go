package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
)

func newWatchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Connect every provider and print health events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := &syncWriter{w: cmd.OutOrStdout()}

			// Subscribe before connecting so nothing is missed.
			subscribe := func(sup mcpsup.Supervisor) {
				sup.OnHealthEvent(func(e mcpsup.HealthEvent) {
					out.Printf("%s\t%s\t%s\n", e.Time().Format(time.RFC3339), e.Provider(), describeEvent(e))
				})
			}

			return runWithSupervisor(cmd, opts, subscribe, func(ctx context.Context, _ mcpsup.Supervisor, results []connectResult) error {
				for _, r := range results {
					if r.err != nil {
						out.Printf("%s\t%s\tconnect failed: %v\n", time.Now().Format(time.RFC3339), r.name, r.err)
					} else {
						out.Printf("%s\t%s\tconnected\n", time.Now().Format(time.RFC3339), r.name)
					}
				}

				<-ctx.Done()

				return nil
			})
		},
	}
}

func describeEvent(e mcpsup.HealthEvent) string {
	switch ev := e.(type) {
	case *mcpsup.UnhealthyEvent:
		return "unhealthy: " + errText(ev.Err)
	case *mcpsup.RestartingEvent:
		return "restarting (attempt " + strconv.Itoa(ev.Attempt) + ")"
	case *mcpsup.RestartFailedEvent:
		return "restart failed: " + errText(ev.Err)
	default:
		return string(e.EventType())
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}

	return err.Error()
}
