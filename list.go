package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/config"
	"github.com/bobuk/gcalbook/internal/session"
	"github.com/bobuk/gcalbook/internal/timeparse"
)

func listAppointments(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	days := fs.Int("days", 7, "how many days ahead to list")
	tickets := fs.Bool("tickets", false, "also list confirmation tickets (sqlite backend only)")
	nowFlag := fs.String("now", "", "reference instant in RFC 3339 (default: now)")
	fs.Parse(args)

	now, err := referenceTime(*nowFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	loc := a.engine.Location()
	window := calendar.TimeRange{Start: now, End: now.AddDate(0, 0, *days)}
	events, err := a.provider.ListEvents(ctx, window)
	if err != nil {
		return fmt.Errorf("error retrieving appointments: %w", err)
	}

	fmt.Printf("📋 Appointments for the next %d days:\n", *days)
	if len(events) == 0 {
		fmt.Println("  📭 none")
	}
	for _, e := range events {
		fmt.Printf("  📅 %s %s - %s", e.Range.Start.In(loc).Format(timeparse.DateTimeLayout), e.Range.End.In(loc).Format(timeparse.ClockLayout), e.Name)
		if e.Service != "" {
			fmt.Printf(" (%s)", e.Service)
		}
		fmt.Println()
	}

	if !*tickets {
		return nil
	}
	lister, ok := a.store.(*session.SQLiteStore)
	if !ok {
		fmt.Printf("  ❗️ Ticket listing needs the sqlite session backend, not %s\n", cfg.Session.Backend)
		return nil
	}
	all, err := lister.List(ctx)
	if err != nil {
		return fmt.Errorf("error retrieving tickets: %w", err)
	}
	fmt.Println("🎫 Confirmation tickets:")
	for _, t := range all {
		state := string(t.Resolution)
		if t.ExpiredAt(now) {
			state = "expired"
		}
		fmt.Printf("  🎫 %s [%s] %s %s at %s, session %s\n", t.ID, state, t.Operation.Kind,
			t.Operation.Name, t.Proposed.Start.In(loc).Format(timeparse.DateTimeLayout), t.SessionID)
	}
	return nil
}

