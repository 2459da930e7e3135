package main

import (
	"fmt"

	"github.com/bobuk/gcalbook/internal/config"
	"github.com/bobuk/gcalbook/internal/database"
)

func initDatabase(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := database.Version(db)
	if err != nil {
		return fmt.Errorf("error reading schema version: %w", err)
	}
	fmt.Printf("✅ Database %s is ready (schema version %d)\n", cfg.DBPath(), version)
	return nil
}
