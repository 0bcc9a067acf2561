package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jutuon/afrodite-backend-sub001/config"
	"github.com/jutuon/afrodite-backend-sub001/internal/server"
)

// Exit codes: 0 clean shutdown, 1 config/bootstrap failure, 3 runtime fatal
// (SPEC_FULL.md §6).
func main() {
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := server.NewApplication(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		slog.Error("application stopped with error", "error", err)
		os.Exit(3)
	}
}
