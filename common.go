package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bobuk/gcalbook/internal/availability"
	"github.com/bobuk/gcalbook/internal/booking"
	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/config"
	"github.com/bobuk/gcalbook/internal/confirm"
	"github.com/bobuk/gcalbook/internal/database"
	"github.com/bobuk/gcalbook/internal/logging"
	"github.com/bobuk/gcalbook/internal/session"
	"github.com/bobuk/gcalbook/internal/telemetry"
	"github.com/bobuk/gcalbook/internal/timeparse"
)

// app holds everything a command needs. close releases it in reverse
// order of construction.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *sql.DB
	provider calendar.Provider
	store    session.Store
	broker   *confirm.Broker
	engine   *booking.Engine
	closers  []func() error
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	return database.Open(cfg.DBPath())
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.General.VerbosityLevel, cfg.General.Production)
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	shutdown, err := telemetry.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(shutdownCtx)
	})

	if a.db, err = openDB(cfg); err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)

	if a.provider, err = calendar.NewFactory(cfg, a.db, logger).Provider(ctx); err != nil {
		a.close()
		return nil, err
	}

	if a.store, err = openStore(ctx, cfg, a.db); err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	pol, err := cfg.Policy()
	if err != nil {
		a.close()
		return nil, err
	}
	b := cfg.Booking
	index := availability.New(a.provider, pol,
		availability.WithStep(b.Step.Duration),
		availability.WithHorizon(b.SearchHorizon.Duration),
		availability.WithLogger(logger))
	a.broker = confirm.NewBroker(a.store,
		confirm.WithTTL(b.TicketTTL.Duration),
		confirm.WithRetention(cfg.Session.Retention.Duration),
		confirm.WithLogger(logger))
	a.engine = booking.New(a.provider, index, a.broker, timeparse.New(pol.Location()), booking.Options{
		DefaultDuration:  b.DefaultDuration.Duration,
		MaxProbe:         b.MaxProbe,
		LookupHorizon:    b.LookupHorizon.Duration,
		Services:         b.Services,
		DefaultService:   b.DefaultService,
		SerializeCommits: b.SerializeCommits,
		Logger:           logger,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, db *sql.DB) (session.Store, error) {
	s := cfg.Session
	switch s.Backend {
	case "sqlite":
		return session.NewSQLiteStore(db), nil
	case "redis":
		client, err := session.DialRedis(ctx, s.RedisAddr, s.RedisPassword, s.RedisDB)
		if err != nil {
			return nil, err
		}
		return session.NewRedisStore(client, s.RedisPrefix, s.Retention.Duration), nil
	default:
		return session.NewMemoryStore(), nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "  ❗️ Error during shutdown: %v\n", err)
		}
	}
	a.closers = nil
}

// referenceTime parses the -now flag, falling back to the wall clock.
func referenceTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -now %q, want RFC 3339", raw)
	}
	return t, nil
}

// clockFor returns the instant source for answers given after ref. A
// pinned -now stays pinned, otherwise the wall clock is read each time.
func clockFor(raw string, ref time.Time) func() time.Time {
	if raw == "" {
		return time.Now
	}
	return func() time.Time { return ref }
}

func printResult(res booking.Result) {
	switch res.Status {
	case booking.StatusApproved:
		fmt.Printf("✅ %s\n", res.Message)
		if res.Confirmation == nil {
			return
		}
		if res.Confirmation.PublicLink != "" {
			fmt.Printf("  🔗 Share: %s\n", res.Confirmation.PublicLink)
		}
		if res.Confirmation.OwnerLink != "" {
			fmt.Printf("  📅 Calendar: %s\n", res.Confirmation.OwnerLink)
		}
	case booking.StatusPending:
		fmt.Printf("🕒 %s\n", res.Message)
		fmt.Printf("  🎫 Ticket %s expires at %s\n", res.TicketID, res.ExpiresAt.Format(timeparse.DateTimeLayout))
	default:
		fmt.Printf("🚫 %s (%s)\n", res.Message, res.Reason)
	}
}

// ask prompts on stdout and reports whether the answer was affirmative.
func ask(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	decision, err := confirm.ParseDecision(strings.TrimSpace(line))
	return err == nil && decision == confirm.Accept
}

// resolvePending asks about a freshly issued ticket and prints the outcome.
// The decision is stamped when it is given, not when the ticket was issued.
func (a *app) resolvePending(ctx context.Context, res booking.Result, clock func() time.Time) error {
	for res.Status == booking.StatusPending {
		decision := confirm.Reject
		if ask("  ❓ Take the proposed slot?") {
			decision = confirm.Accept
		}
		var err error
		res, err = a.engine.ResolveConfirmation(ctx, booking.ResolveRequest{
			TicketID: res.TicketID,
			Decision: decision,
			Now:      clock(),
		})
		if err != nil {
			a.logger.Debug("resolution failed", zap.Error(err))
		}
		printResult(res)
	}
	return nil
}
