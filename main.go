package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/zfault/droidpilot/cmd"
	"github.com/zfault/droidpilot/internal/observability"
)

func main() {
	// SIGINT/SIGTERM cancel the context; the loop notices between steps and
	// terminates the run cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
