package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
)

func main() {
	// Setup signal-based context (SIGINT, SIGTERM). Units already committed
	// survive an interrupt; the next run resumes after them.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}
