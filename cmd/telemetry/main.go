package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/luhtfiimanal/go-serial-telemetry/cmd/telemetry/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCommand().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
