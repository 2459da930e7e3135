package calendar

import (
	"context"
	"errors"
	"testing"

	"github.com/bobuk/gcalbook/internal/config"
)

func TestFactoryProviders(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.General.Provider = "memory"
	p, err := NewFactory(cfg, nil, nil).Provider(ctx)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if !IsAtomic(p) {
		t.Fatalf("memory provider should be atomic")
	}
	if err := ValidateAccess(ctx, p); err != nil {
		t.Fatalf("memory access: %v", err)
	}

	cfg = config.Default()
	cfg.General.Provider = "caldav"
	cfg.CalDAV.ServerURL = "https://dav.example.com"
	cfg.CalDAV.CalendarPath = "/calendars/desk/work/"
	p, err = NewFactory(cfg, nil, nil).Provider(ctx)
	if err != nil {
		t.Fatalf("caldav: %v", err)
	}
	if _, ok := p.(*CalDAVProvider); !ok || IsAtomic(p) {
		t.Fatalf("expected a non-atomic caldav provider, got %T", p)
	}

	cfg = config.Default()
	cfg.General.Provider = "google"
	cfg.Google.ClientID, cfg.Google.ClientSecret = "id", "secret"
	_, err = NewFactory(cfg, newTokenDB(t), nil).Provider(ctx)
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken for an unauthorized account, got %v", err)
	}

	cfg = config.Default()
	cfg.General.Provider = "exchange"
	if _, err := NewFactory(cfg, nil, nil).Provider(ctx); err == nil {
		t.Fatal("expected error for an unsupported provider")
	}
}
