package database

import (
	"path/filepath"
	"testing"
)

func TestOpenMigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	version, err := Version(db)
	if err != nil || version != len(migrations) {
		t.Fatalf("version=%d err=%v", version, err)
	}
	if _, err := db.Exec(`INSERT INTO tokens (account_name, token) VALUES ('default', '{}')`); err != nil {
		t.Fatalf("tokens table missing: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tokens`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("data lost on reopen: n=%d err=%v", n, err)
	}
}
