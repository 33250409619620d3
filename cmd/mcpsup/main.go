// Command mcpsup connects the providers listed in a YAML file and reports on
// their health and tools.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if !stderrors.Is(err, errUnhealthy) {
			fmt.Fprintln(os.Stderr, err)
		}

		cancel()
		os.Exit(1)
	}
}
