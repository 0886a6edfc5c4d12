package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgefleet/rollout-agent/cmd/rollout-agent/app"

	_ "go.uber.org/automaxprocs"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRolloutAgentCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
