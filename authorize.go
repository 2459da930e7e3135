package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/config"
)

func authorizeAccount(cfg *config.Config) error {
	if cfg.General.Provider != "google" {
		return fmt.Errorf("provider %s does not need authorization", cfg.General.Provider)
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	account := cfg.General.AccountName
	fmt.Printf("🚀 Authorizing account %s...\n", account)

	g := cfg.Google
	token, err := calendar.Authorize(ctx, calendar.OAuthConfig(g.ClientID, g.ClientSecret, g.RedirectURL), os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if err := calendar.NewTokenStore(db).Save(account, token); err != nil {
		return fmt.Errorf("error saving token: %w", err)
	}

	provider, err := calendar.NewFactory(cfg, db, nil).Provider(ctx)
	if err != nil {
		return err
	}
	if err := calendar.ValidateAccess(ctx, provider); err != nil {
		return fmt.Errorf("error retrieving calendar %s: %w", cfg.General.CalendarID, err)
	}
	fmt.Printf("✅ Account %s authorized for calendar %s\n", account, cfg.General.CalendarID)
	return nil
}
