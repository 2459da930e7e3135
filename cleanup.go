package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/bobuk/gcalbook/internal/config"
	"github.com/bobuk/gcalbook/internal/confirm"
	"github.com/bobuk/gcalbook/internal/logging"
)

// cleanupTickets purges tickets past their retention without touching the calendar, so
// it works even while the provider is unreachable.
func cleanupTickets(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	nowFlag := fs.String("now", "", "reference instant in RFC 3339 (default: now)")
	fs.Parse(args)

	now, err := referenceTime(*nowFlag)
	if err != nil {
		return err
	}
	if cfg.Session.Backend == "memory" {
		fmt.Println("📭 In-memory tickets do not outlive the process, nothing to clean up")
		return nil
	}

	logger, err := logging.New(cfg.General.VerbosityLevel, cfg.General.Production)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	store, err := openStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := confirm.NewBroker(store,
		confirm.WithRetention(cfg.Session.Retention.Duration),
		confirm.WithLogger(logger)).Sweep(ctx, now)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Purged %d expired tickets\n", n)
	return nil
}
