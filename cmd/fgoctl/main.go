// Command fgoctl deploys and operates FGO template registries.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(dialDynamoDB).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
