package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tradebook/internal/client/cli"
)

// Set with -ldflags "-X main.buildVersion=...".
var buildVersion = "N/A"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(buildVersion).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
