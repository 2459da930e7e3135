// Package database opens the local sqlite file and keeps its schema
// current. It holds OAuth tokens and confirmation tickets.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaName = "gcalbook"

// migrations[i] upgrades the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS tokens (
			account_name TEXT PRIMARY KEY,
			token TEXT)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			operation TEXT NOT NULL,
			proposed_start TEXT NOT NULL,
			proposed_end TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			resolution TEXT NOT NULL,
			resolved_at TEXT)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS tickets_one_pending
			ON tickets (session_id) WHERE resolution = 'pending'`,
		`CREATE INDEX IF NOT EXISTS tickets_expires_at ON tickets (expires_at)`,
	},
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection serializes writers, which sqlite needs anyway.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Version returns the current schema version, 0 for a fresh database.
func Version(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM db_version WHERE name = ?", schemaName).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}

func Migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS db_version (
		name TEXT PRIMARY KEY,
		version INTEGER
	)`)
	if err != nil {
		return fmt.Errorf("error creating db_version table: %w", err)
	}
	_, err = db.Exec(`INSERT OR IGNORE INTO db_version (name, version) VALUES (?, 0)`, schemaName)
	if err != nil {
		return fmt.Errorf("error initializing db_version table: %w", err)
	}

	version, err := Version(db)
	if err != nil {
		return fmt.Errorf("error reading db_version: %w", err)
	}

	for ; version < len(migrations); version++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range migrations[version] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("error migrating to version %d: %w", version+1, err)
			}
		}
		if _, err := tx.Exec(`UPDATE db_version SET version = ? WHERE name = ?`, version+1, schemaName); err != nil {
			tx.Rollback()
			return fmt.Errorf("error updating db_version table: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
