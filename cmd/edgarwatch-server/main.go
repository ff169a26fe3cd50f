package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wofare/edgarwatch/internal/app"
	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/server"
)

func main() {
	configPath := os.Getenv("EDGARWATCH_CONFIG")

	a, err := app.NewApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	// Background workers: processor pool, poller, reaper.
	a.StartJobManager()

	srv := server.NewServer(a.Storage, a.QuoteService, a.JobManager, a.Config, a.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(ctx)
	}()

	a.Logger.Info().
		Int("port", a.Config.Server.Port).
		Msg("Server ready")

	// Wait for interrupt signal or server failure.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		a.Logger.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			a.Logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	cancel()
	if err := srv.Shutdown(); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	a.Close()
	a.Logger.Info().Msg("Server stopped")
}
