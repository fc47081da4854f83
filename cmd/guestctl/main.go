// Command guestctl is the operator console: it reads and edits the guest
// list through the reconciliation engine, keeping a local cache that stays
// usable while the backend is unreachable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &console{out: os.Stdout, errOut: os.Stderr}
	err := newRootCommand(c).ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
