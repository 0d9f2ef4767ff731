// ABOUTME: Entry point for the stdio to HTTPS bridge used by desktop MCP clients.
// ABOUTME: Reads credentials from the environment once and forwards stdin lines to the gateway.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fortunamind/persistent-gateway/internal/bridge"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	endpoint := os.Getenv("FORTUNAMIND_GATEWAY_URL")
	if endpoint == "" {
		fmt.Fprintln(os.Stderr, "Error: FORTUNAMIND_GATEWAY_URL is required (e.g. https://gateway.fortunamind.com/mcp)")
		os.Exit(1)
	}

	// All logging goes to stderr; stdout carries only JSON-RPC lines.
	// The default level omits all header and body content.
	level := slog.LevelWarn
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	b, err := bridge.New(bridge.Config{
		EndpointURL: endpoint,
		Credentials: bridge.CredentialsFromEnv(),
		Logger:      logger.With("component", "bridge"),
		In:          os.Stdin,
		Out:         os.Stdout,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Debug("bridge started", "version", version)
	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}
