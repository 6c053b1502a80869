// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mlvn23/patentflow/cmd"
)

// main is the entry point for the patentflow CLI. The context is cancelled on
// SIGINT and SIGTERM so in-flight workflows shut down instead of being killed
// mid-step.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
