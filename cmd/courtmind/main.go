package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/duskmantle/courtmind/cmd"
	"github.com/duskmantle/courtmind/internal/observability"
)

func main() {
	defer observability.Sync()

	// Interrupts cancel the context so in-flight turns and the media
	// scheduler drain cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
