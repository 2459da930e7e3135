package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/database"
)

var base = time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC)

func newTicket(id, sessionID string) Ticket {
	return Ticket{
		ID:        id,
		SessionID: sessionID,
		Operation: Operation{
			Kind:     KindCreate,
			Name:     "Anna Rossi",
			Email:    "anna@example.com",
			Date:     "2025-12-03",
			Time:     "14:00",
			Duration: time.Hour,
			Attempt:  1,
		},
		Proposed:  calendar.NewRange(base.Add(5*time.Hour), time.Hour),
		CreatedAt: base,
		ExpiresAt: base.Add(10 * time.Minute),
	}
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		in := newTicket("rt-1", "sess-rt")
		if err := s.Open(ctx, in); err != nil {
			t.Fatalf("open: %v", err)
		}
		got, err := s.Get(ctx, "rt-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Resolution != Pending || got.Operation != in.Operation ||
			!got.Proposed.Start.Equal(in.Proposed.Start) || !got.ExpiresAt.Equal(in.ExpiresAt) {
			t.Fatalf("ticket changed in storage: %+v", got)
		}
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("one pending per session", func(t *testing.T) {
		if err := s.Open(ctx, newTicket("sup-1", "sess-sup")); err != nil {
			t.Fatalf("open first: %v", err)
		}
		second := newTicket("sup-2", "sess-sup")
		second.CreatedAt = base.Add(time.Minute)
		if err := s.Open(ctx, second); err != nil {
			t.Fatalf("open second: %v", err)
		}

		first, _ := s.Get(ctx, "sup-1")
		if first.Resolution != Superseded {
			t.Fatalf("first ticket should be superseded, got %s", first.Resolution)
		}
		pending, err := s.Pending(ctx, "sess-sup")
		if err != nil || pending.ID != "sup-2" {
			t.Fatalf("pending=%+v err=%v", pending, err)
		}
		if err := s.Resolve(ctx, "sup-1", Accepted, base); !errors.Is(err, ErrNotPending) {
			t.Fatalf("superseded ticket must not be accepted: %v", err)
		}
	})

	t.Run("resolve is compare and set", func(t *testing.T) {
		if err := s.Open(ctx, newTicket("cas-1", "sess-cas")); err != nil {
			t.Fatalf("open: %v", err)
		}

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res := Accepted
				if i%2 == 1 {
					res = Rejected
				}
				results <- s.Resolve(ctx, "cas-1", res, base.Add(time.Minute))
			}(i)
		}
		wg.Wait()
		close(results)

		won := 0
		for err := range results {
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrNotPending):
			default:
				t.Fatalf("unexpected error %v", err)
			}
		}
		if won != 1 {
			t.Fatalf("expected exactly one winner, got %d", won)
		}
		if _, err := s.Pending(ctx, "sess-cas"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("resolved ticket is still pending: %v", err)
		}
		if err := s.Resolve(ctx, "missing", Accepted, base); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("supersede", func(t *testing.T) {
		if err := s.Open(ctx, newTicket("ss-1", "sess-ss")); err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := s.Supersede(ctx, "sess-ss", base.Add(time.Minute)); err != nil {
			t.Fatalf("supersede: %v", err)
		}
		got, _ := s.Get(ctx, "ss-1")
		if got.Resolution != Superseded {
			t.Fatalf("got %s", got.Resolution)
		}
		if err := s.Supersede(ctx, "sess-none", base); err != nil {
			t.Fatalf("supersede without pending ticket: %v", err)
		}
	})

	t.Run("reopen", func(t *testing.T) {
		if err := s.Open(ctx, newTicket("ro-1", "sess-ro")); err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := s.Reopen(ctx, "ro-1"); !errors.Is(err, ErrNotReopenable) {
			t.Fatalf("pending ticket must not reopen: %v", err)
		}
		if err := s.Resolve(ctx, "ro-1", Accepted, base.Add(time.Minute)); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if err := s.Reopen(ctx, "ro-1"); err != nil {
			t.Fatalf("reopen: %v", err)
		}
		pending, err := s.Pending(ctx, "sess-ro")
		if err != nil || pending.ID != "ro-1" || !pending.ResolvedAt.IsZero() {
			t.Fatalf("pending=%+v err=%v", pending, err)
		}
		if err := s.Resolve(ctx, "ro-1", Accepted, base.Add(2*time.Minute)); err != nil {
			t.Fatalf("reopened ticket should resolve again: %v", err)
		}

		// A newer request of the same session wins over the reopened one.
		newer := newTicket("ro-2", "sess-ro")
		newer.CreatedAt = base.Add(3 * time.Minute)
		if err := s.Open(ctx, newer); err != nil {
			t.Fatalf("open newer: %v", err)
		}
		if err := s.Reopen(ctx, "ro-1"); !errors.Is(err, ErrNotReopenable) {
			t.Fatalf("expected ErrNotReopenable, got %v", err)
		}
		if err := s.Reopen(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("purge", func(t *testing.T) {
		old := newTicket("old-1", "sess-purge")
		old.CreatedAt = base.Add(-48 * time.Hour)
		old.ExpiresAt = old.CreatedAt.Add(10 * time.Minute)
		if err := s.Open(ctx, old); err != nil {
			t.Fatalf("open: %v", err)
		}
		n, err := s.Purge(ctx, base.Add(-24*time.Hour))
		if err != nil || n < 1 {
			t.Fatalf("purge n=%d err=%v", n, err)
		}
		if _, err := s.Get(ctx, "old-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("purged ticket still present: %v", err)
		}
		if _, err := s.Get(ctx, "rt-1"); err != nil {
			t.Fatalf("fresh ticket purged: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	testStore(t, NewSQLiteStore(db))
}

func TestSQLiteStoreWithoutSession(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	s := NewSQLiteStore(db)
	ctx := context.Background()

	// Tickets without a session never collide on the pending index.
	for _, id := range []string{"a", "b"} {
		if err := s.Open(ctx, newTicket(id, "")); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}
	tickets, err := s.List(ctx)
	if err != nil || len(tickets) != 2 {
		t.Fatalf("list: %v %v", tickets, err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := DialRedis(context.Background(), addr, os.Getenv("TEST_REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	s := NewRedisStore(client, "gcalbook-test:"+uuid.NewString()+":", time.Hour)
	defer s.Close()
	testStore(t, s)
}
