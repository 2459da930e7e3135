package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/bobuk/gcalbook/internal/config"
	"github.com/bobuk/gcalbook/internal/timeparse"
)

func listSlots(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("slots", flag.ExitOnError)
	duration := fs.Duration("duration", 0, "slot length (default from config)")
	nowFlag := fs.String("now", "", "reference instant in RFC 3339 (default: now)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return errors.New("usage: gcalbook slots [-duration d] <date>")
	}
	dateExpr := strings.Join(fs.Args(), " ")
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

	slots, err := a.engine.DaySlots(ctx, dateExpr, *duration, now)
	if err != nil {
		return err
	}
	day, _ := a.engine.Parser().ParseDate(dateExpr, now)
	d := *duration
	if d <= 0 {
		d = a.engine.DefaultDuration()
	}

	if len(slots) == 0 {
		fmt.Printf("📭 No free %s slots on %s\n", durationLabel(d), day.Format(timeparse.DateLayout))
		return nil
	}
	fmt.Printf("📋 Free %s slots on %s:\n", durationLabel(d), day.Format(timeparse.DateLayout))
	for _, s := range slots {
		fmt.Printf("  🕒 %s - %s\n", s.Start.Format(timeparse.ClockLayout), s.End.Format(timeparse.ClockLayout))
	}
	return nil
}

func parseExpression(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	dateOnly := fs.Bool("date", false, "parse a date without a time")
	nowFlag := fs.String("now", "", "reference instant in RFC 3339 (default: now)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return errors.New("usage: gcalbook parse [-date] <expression>")
	}
	expr := strings.Join(fs.Args(), " ")
	now, err := referenceTime(*nowFlag)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	parser := timeparse.New(loc)

	if *dateOnly {
		day, err := parser.ParseDate(expr, now)
		if err != nil {
			return err
		}
		fmt.Printf("📅 %s\n", day.Format("Monday, "+timeparse.DateLayout))
		return nil
	}
	t, err := parser.Parse(expr, now)
	if err != nil {
		return err
	}
	fmt.Printf("📅 %s\n", t.Format("Monday, "+timeparse.DateTimeLayout))
	return nil
}

// durationLabel renders d the way the slot listings show it.
func durationLabel(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	return fmt.Sprintf("%dm", d/time.Minute)
}
