package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bobuk/gcalbook/internal/config"
	"github.com/bobuk/gcalbook/internal/database"
	"github.com/bobuk/gcalbook/internal/session"
)

func TestReferenceTime(t *testing.T) {
	got, err := referenceTime("2025-12-01T08:00:00+01:00")
	if err != nil {
		t.Fatalf("referenceTime: %v", err)
	}
	if want := time.Date(2025, 12, 1, 7, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if _, err := referenceTime("tomorrow"); err == nil {
		t.Fatal("expected an error for a non RFC 3339 instant")
	}
	if got, err := referenceTime(""); err != nil || got.IsZero() {
		t.Fatalf("empty flag should fall back to the clock: %v %v", got, err)
	}
}

func TestClockFor(t *testing.T) {
	ref := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	pinned := clockFor("2025-12-01T08:00:00Z", ref)
	if got := pinned(); !got.Equal(ref) {
		t.Fatalf("pinned clock moved: %v", got)
	}
	live := clockFor("", ref)
	if got := live(); !got.After(ref) {
		t.Fatalf("live clock should read the current time, got %v", got)
	}
}

func TestDurationLabel(t *testing.T) {
	cases := map[time.Duration]string{
		time.Hour:        "1h",
		2 * time.Hour:    "2h",
		30 * time.Minute: "30m",
		90 * time.Minute: "90m",
	}
	for d, want := range cases {
		if got := durationLabel(d); got != want {
			t.Errorf("durationLabel(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	cfg := config.Default()
	ctx := context.Background()

	cfg.Session.Backend = "memory"
	store, err := openStore(ctx, cfg, db)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*session.MemoryStore); !ok {
		t.Fatalf("expected a memory store, got %T", store)
	}

	cfg.Session.Backend = "sqlite"
	store, err = openStore(ctx, cfg, db)
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	if _, ok := store.(*session.SQLiteStore); !ok {
		t.Fatalf("expected a sqlite store, got %T", store)
	}
}
