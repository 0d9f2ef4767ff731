// ABOUTME: Administrative CLI for the subscription registry.
// ABOUTME: Issues, revokes, inspects, and lists subscription keys out of band.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/fortunamind/persistent-gateway/internal/config"
	"github.com/fortunamind/persistent-gateway/internal/identity"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/subscription"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "issue":
		err = runIssue(ctx, os.Args[2:])
	case "revoke":
		err = runRevoke(ctx, os.Args[2:])
	case "show":
		err = runShow(ctx, os.Args[2:])
	case "list":
		err = runList(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: fortuna-admin <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  issue --email EMAIL --tier TIER [--days N]   Issue a subscription key")
	fmt.Println("  revoke --email EMAIL                         Revoke a subscription")
	fmt.Println("  show --email EMAIL                           Show one subscription")
	fmt.Println("  list [--limit N]                             List subscriptions")
}

// openRegistry opens the subscription store named by the configuration.
func openRegistry() (store.SubscriptionStore, error) {
	cfg, err := config.Load(os.Getenv("FORTUNAMIND_CONFIG"))
	if err != nil {
		return nil, err
	}

	if cfg.Subscription.RegistryURL != "" {
		return store.NewPostgresBackend(cfg.Subscription.RegistryURL)
	}
	if cfg.Database.Driver == config.StoragePostgres {
		return store.NewPostgresBackend(cfg.Database.URL)
	}
	return store.NewSQLiteBackend(cfg.Database.Path)
}

func runIssue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	email := fs.String("email", "", "subscriber email")
	tier := fs.String("tier", "starter", "subscription tier (free|starter|premium|enterprise)")
	days := fs.Int("days", 365, "validity in days")
	_ = fs.Parse(args)

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if !subscription.Tier(*tier).Valid() {
		return fmt.Errorf("unknown tier %q", *tier)
	}

	normalized, err := identity.Normalize(*email)
	if err != nil {
		return err
	}

	key, err := subscription.GenerateKey()
	if err != nil {
		return err
	}

	registry, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeRegistry(registry)

	expires := time.Now().UTC().AddDate(0, 0, *days)
	record := &subscription.Record{
		Email:     normalized,
		Key:       key,
		Tier:      subscription.Tier(*tier),
		Status:    subscription.StatusActive,
		ExpiresAt: &expires,
	}
	if err := registry.UpsertSubscription(ctx, record); err != nil {
		return err
	}

	fmt.Printf("%s subscription issued\n", green("✓"))
	fmt.Printf("  email:   %s\n", normalized)
	fmt.Printf("  tier:    %s\n", *tier)
	fmt.Printf("  expires: %s\n", expires.Format("2006-01-02"))
	fmt.Printf("  key:     %s\n", bold(key))
	fmt.Println()
	fmt.Println("Share the key with the subscriber; it is not recoverable later without reissuing.")
	return nil
}

func runRevoke(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	email := fs.String("email", "", "subscriber email")
	_ = fs.Parse(args)

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	normalized, err := identity.Normalize(*email)
	if err != nil {
		return err
	}

	registry, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeRegistry(registry)

	if err := registry.SetSubscriptionStatus(ctx, normalized, subscription.StatusRevoked); err != nil {
		return err
	}

	fmt.Printf("%s subscription revoked for %s\n", yellow("!"), normalized)
	fmt.Println("Cached validations expire within the configured TTL (default 5 minutes).")
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	email := fs.String("email", "", "subscriber email")
	_ = fs.Parse(args)

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	normalized, err := identity.Normalize(*email)
	if err != nil {
		return err
	}

	registry, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeRegistry(registry)

	record, err := registry.GetSubscription(ctx, normalized)
	if err != nil {
		return err
	}

	printRecord(record)
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "maximum rows")
	_ = fs.Parse(args)

	registry, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeRegistry(registry)

	records, err := registry.ListSubscriptions(ctx, *limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("no subscriptions")
		return nil
	}
	for _, record := range records {
		printRecord(record)
		fmt.Println()
	}
	return nil
}

func printRecord(record *subscription.Record) {
	status := string(record.Status)
	switch record.Status {
	case subscription.StatusActive:
		status = green(status)
	case subscription.StatusRevoked, subscription.StatusExpired:
		status = red(status)
	case subscription.StatusGrace:
		status = yellow(status)
	}

	fmt.Printf("%s  tier=%s  status=%s", bold(record.Email), record.Tier, status)
	if record.ExpiresAt != nil {
		fmt.Printf("  expires=%s", record.ExpiresAt.Format("2006-01-02"))
	}
	fmt.Println()
}

func closeRegistry(registry store.SubscriptionStore) {
	if closer, ok := registry.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
