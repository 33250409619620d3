package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	mcpsup "github.com/wagiedev/mcp-supervisor-go"
)

func newToolsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Connect every provider and list the tools it offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithSupervisor(cmd, opts, nil, func(ctx context.Context, sup mcpsup.Supervisor, _ []connectResult) error {
				cat := mcpsup.NewToolCatalog(sup, nil)
				defer cat.Close()

				if err := cat.RefreshAll(ctx); err != nil {
					return fmt.Errorf("list tools: %w", err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TOOL\tDESCRIPTION")

				for _, tool := range cat.Tools() {
					fmt.Fprintf(w, "%s\t%s\n", tool.QualifiedName(), tool.Description)
				}

				return w.Flush()
			})
		},
	}
}
