package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
)

var errUnhealthy = stderrors.New("one or more providers are not healthy")

func newCheckCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect every provider, probe it once, and print its health",
		Long: `Connect every provider in the providers file, send one ping to each,
and print a status table. Exits non-zero if any provider is not healthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithSupervisor(cmd, opts, nil, func(ctx context.Context, sup mcpsup.Supervisor, results []connectResult) error {
				sup.CheckAllServersHealth(ctx)

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PROVIDER\tSTATUS\tUPTIME\tDETAIL")

				healthy := true

				for _, r := range results {
					status, detail, uptime := string(mcpsup.StatusUnknown), "", time.Duration(0)

					switch rec, ok := sup.GetServerHealth(r.name); {
					case r.err != nil:
						status, detail = "failed", r.err.Error()
					case ok:
						status, detail, uptime = string(rec.Status), rec.LastError, rec.Uptime
					}

					if status != string(mcpsup.StatusHealthy) {
						healthy = false
					}

					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.name, status, uptime.Round(time.Millisecond), detail)
				}

				if err := w.Flush(); err != nil {
					return err
				}

				if !healthy {
					return errUnhealthy
				}

				return nil
			})
		},
	}
}
