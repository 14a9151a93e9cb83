// clear-trades deletes today's mirrored Completed Trades from the
// Postgres audit mirror. It never touches the DynamoDB system of record.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/config"
	"github.com/kestrel-labs/daytrader-engine/internal/storage"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	confirm := flag.Bool("confirm", false, "confirm deletion (must be explicit)")
	flag.Parse()

	today := time.Now().Format("2006-01-02")

	if !*confirm {
		fmt.Printf("This will delete all mirrored trades for %s from the audit store.\n", today)
		fmt.Println("To proceed, run: clear-trades --confirm")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "database_url is not configured; no audit mirror to clear")
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit mirror: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	deleted, err := store.ClearDate(ctx, today)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clear trades: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %d mirrored trades for %s\n", deleted, today)
}
