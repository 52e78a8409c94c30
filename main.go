package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/server"
	"github.com/evidenceledger/oadrvtn/internal/vtnconfig"
)

func main() {
	flags := vtnconfig.RegisterFlags(flag.CommandLine)
	flag.Parse()

	// Defaults, then the config file, then OADR_* variables, then explicit flags
	cfg, err := vtnconfig.Load(flags.ConfigPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", errl.Detail(err))
		os.Exit(1)
	}
	flags.Apply(cfg)

	// Initialize logging
	level := cfg.SlogLevel()
	if cfg.Development {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received")
		cancel()
	}()

	// Create the main server. This wires storage, registration and both HTTP services.
	srv, err := server.New(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to create server", "error", errl.Detail(err))
		os.Exit(1)
	}

	if err := srv.Start(ctx); err != nil {
		slog.Error("Server failed", "error", errl.Detail(err))
		os.Exit(1)
	}
}
