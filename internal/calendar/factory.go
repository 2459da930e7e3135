package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/bobuk/gcalbook/internal/config"
)

// Factory builds the configured calendar provider.
type Factory struct {
	config *config.Config
	db     *sql.DB
	logger *zap.Logger
	// googleOptions are appended to the Google client options; tests use
	// them to point the client at a fake server.
	googleOptions []option.ClientOption
}

func NewFactory(cfg *config.Config, db *sql.DB, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{config: cfg, db: db, logger: logger}
}

func (f *Factory) Provider(ctx context.Context) (Provider, error) {
	loc, err := f.config.Location()
	if err != nil {
		return nil, err
	}

	switch f.config.General.Provider {
	case "google":
		g := f.config.Google
		oauthConfig := OAuthConfig(g.ClientID, g.ClientSecret, g.RedirectURL)
		client, err := Client(ctx, oauthConfig, NewTokenStore(f.db), f.config.General.AccountName)
		if errors.Is(err, ErrNoToken) {
			return nil, fmt.Errorf("account %s is not authorized, run `gcalbook authorize` first: %w", f.config.General.AccountName, err)
		}
		if err != nil {
			return nil, err
		}
		p, err := NewGoogleProvider(ctx, client, f.config.General.CalendarID, loc, f.googleOptions...)
		if err != nil {
			return nil, fmt.Errorf("error creating Google calendar provider: %w", err)
		}
		f.logger.Info("using google calendar", zap.String("calendar_id", f.config.General.CalendarID))
		return p, nil

	case "caldav":
		c := f.config.CalDAV
		p, err := NewCalDAVProvider(ctx, c.ServerURL, c.Username, c.Password, c.CalendarPath, loc)
		if err != nil {
			return nil, fmt.Errorf("error connecting to CalDAV server %s: %w", c.ServerURL, err)
		}
		f.logger.Info("using caldav calendar",
			zap.String("server", c.ServerURL),
			zap.String("calendar_path", c.CalendarPath))
		return p, nil

	case "memory":
		f.logger.Warn("using in-memory calendar, bookings are lost on exit")
		return NewMemoryProvider(), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", f.config.General.Provider)
	}
}

// Checker is implemented by providers that can verify their calendar is
// reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// ValidateAccess checks the provider's calendar when it supports it.
func ValidateAccess(ctx context.Context, p Provider) error {
	if c, ok := p.(Checker); ok {
		return c.Check(ctx)
	}
	return nil
}
