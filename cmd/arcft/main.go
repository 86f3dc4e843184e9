// Command arcft evaluates reasoning backends on ARC grid tasks, augments
// datasets and maintains the learned rule store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx)
	stop()
	if err != nil {
		fatal(err)
		os.Exit(1)
	}
}
