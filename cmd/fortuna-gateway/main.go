// ABOUTME: Entry point for the FortunaMind persistent gateway server.
// ABOUTME: Serves the MCP tool interface over HTTP or stdio per configuration.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fortunamind/persistent-gateway/internal/bridge"
	"github.com/fortunamind/persistent-gateway/internal/config"
	"github.com/fortunamind/persistent-gateway/internal/gateway"
	"github.com/fortunamind/persistent-gateway/internal/identity"
	"github.com/fortunamind/persistent-gateway/internal/mcp"
	"github.com/fortunamind/persistent-gateway/internal/ratelimit"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/subscription"
	"github.com/fortunamind/persistent-gateway/internal/tools"
	"github.com/fortunamind/persistent-gateway/internal/upstream"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __            _                                    _           _
 / _| ___  _ __| |_ _   _ _ __   __ _ _ __ ___  (_)_ __   __| |
| |_ / _ \| '__| __| | | | '_ \ / _' | '_ ' _ \ | | '_ \ / _' |
|  _| (_) | |  | |_| |_| | | | | (_| | | | | | || | | | | (_| |
|_|  \___/|_|   \__|\__,_|_| |_|\__,_|_| |_| |_||_|_| |_|\__,_|
                      persistent gateway
`

// getConfigPath returns the path to the gateway config file.
// Priority: FORTUNAMIND_CONFIG env var > XDG_CONFIG_HOME > ~/.config.
func getConfigPath() string {
	if envPath := os.Getenv("FORTUNAMIND_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	path := filepath.Join(configDir, "fortunamind", "gateway.yaml")
	if _, err := os.Stat(path); err != nil {
		return "" // defaults + environment only
	}
	return path
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: fortuna-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway (http or stdio per SERVER_MODE)")
		fmt.Println("  migrate   Apply pending database migrations and exit")
		fmt.Println("  health    Check gateway health over HTTP")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "migrate":
		err = runMigrate(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, mcp.ErrDownstream) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// setupLogger builds the process logger from config. In stdio mode all
// logging goes to stderr so stdout stays pure JSON-RPC.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// openBackend constructs the storage backend selected by configuration.
func openBackend(cfg *config.Config) (store.Backend, store.SubscriptionStore, error) {
	switch cfg.Database.Driver {
	case config.StoragePostgres:
		backend, err := store.NewPostgresBackend(cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil
	case config.StorageMock:
		backend := store.NewMockBackend()
		return backend, backend, nil
	default:
		backend, err := store.NewSQLiteBackend(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil
	}
}

// buildAdapter wires the full pipeline from config.
func buildAdapter(cfg *config.Config, logger *slog.Logger) (*gateway.Adapter, store.Backend, *ratelimit.Limiter, error) {
	backend, registry, err := openBackend(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	// The subscription registry may live in a dedicated database.
	var subRegistry subscription.Registry = registry
	if cfg.Subscription.RegistryURL != "" {
		sep, err := store.NewPostgresBackend(cfg.Subscription.RegistryURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening subscription registry: %w", err)
		}
		subRegistry = sep
	}

	validator, err := subscription.NewValidator(subscription.ValidatorConfig{
		Registry: subRegistry,
		Logger:   logger.With("component", "subscription"),
		TTL:      cfg.CacheTTL(),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	toolRegistry := tools.NewRegistry(logger.With("component", "tools"))
	var exchange *upstream.Client
	if cfg.Exchange.BaseURL != "" {
		exchange = upstream.NewClient(cfg.Exchange.BaseURL)
	}
	if err := tools.RegisterBuiltins(toolRegistry, backend, exchange); err != nil {
		return nil, nil, nil, fmt.Errorf("registering tools: %w", err)
	}

	limiter := ratelimit.New(logger.With("component", "ratelimit"), cfg.RateLimit.PerMinute)
	adapter, err := gateway.NewAdapter(gateway.Config{
		Deriver:   identity.NewDeriver(cfg.Identity.Namespace),
		Validator: validator,
		Limiter:   limiter,
		Registry:  toolRegistry,
		Backend:   backend,
		Logger:    logger.With("component", "gateway"),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return adapter, backend, limiter, nil
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	adapter, backend, limiter, err := buildAdapter(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	// Retention and counter pruning run for the lifetime of the process.
	go runMaintenance(ctx, backend, limiter, logger)

	switch cfg.Server.Mode {
	case config.ModeStdio:
		return serveStdio(ctx, adapter, logger)
	default:
		return serveHTTP(ctx, cfg, adapter, logger)
	}
}

// runMaintenance periodically purges soft-deleted journal entries past the
// retention window and drops idle rate counters.
func runMaintenance(ctx context.Context, backend store.Backend, limiter *ratelimit.Limiter, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := backend.PurgeSoftDeleted(ctx, time.Now().AddDate(0, 0, -30))
			if err != nil {
				logger.Warn("retention purge failed", "error", err)
			} else if purged > 0 {
				logger.Info("purged soft-deleted entries", "count", purged)
			}
			if removed := limiter.Prune(); removed > 0 {
				logger.Debug("pruned idle rate counters", "count", removed)
			}
		}
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, adapter *gateway.Adapter, logger *slog.Logger) error {
	fmt.Fprint(os.Stderr, banner)

	server, err := mcp.NewServer(mcp.Config{
		Adapter:        adapter,
		Logger:         logger.With("component", "mcp"),
		Profile:        mcp.SecurityProfile(cfg.Security.Profile),
		AllowedOrigins: cfg.Security.AllowedOrigins,
		StartedAt:      time.Now(),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Addr(), "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func serveStdio(ctx context.Context, adapter *gateway.Adapter, logger *slog.Logger) error {
	creds := bridge.CredentialsFromEnv()
	if creds.Email == "" || creds.SubscriptionKey == "" {
		return errors.New("stdio mode requires FORTUNAMIND_USER_EMAIL and FORTUNAMIND_SUBSCRIPTION_KEY")
	}

	server, err := mcp.NewStdioServer(mcp.StdioConfig{
		Adapter: adapter,
		Logger:  logger.With("component", "mcp-stdio"),
		In:      os.Stdin,
		Out:     os.Stdout,
		Credentials: gateway.Credentials{
			Email:             creds.Email,
			SubscriptionKey:   creds.SubscriptionKey,
			UpstreamAPIKey:    creds.UpstreamAPIKey,
			UpstreamAPISecret: creds.UpstreamAPISecret,
		},
	})
	if err != nil {
		return err
	}

	logger.Info("gateway serving stdio", "version", version)
	return server.Run(ctx)
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}
	setupLogger(cfg)

	backend, _, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	// Opening already applied pending versions; this confirms idempotence.
	applied, err := backend.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("database is up to date")
	} else {
		fmt.Printf("applied versions: %v\n", applied)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("gateway is healthy")
	return nil
}
