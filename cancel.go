package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/bobuk/gcalbook/internal/booking"
	"github.com/bobuk/gcalbook/internal/config"
)

func cancelAppointment(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	email := fs.String("email", "", "email the appointment was booked with")
	phone := fs.String("phone", "", "phone the appointment was booked with")
	yes := fs.Bool("y", false, "do not ask for confirmation")
	sessionID := fs.String("session", "cli", "session id")
	nowFlag := fs.String("now", "", "reference instant in RFC 3339 (default: now)")
	fs.Parse(args)

	if *email == "" && *phone == "" {
		fs.Usage()
		return errors.New("-email or -phone is required")
	}
	now, err := referenceTime(*nowFlag)
	if err != nil {
		return err
	}
	if !*yes && !ask("⚠️  Are you sure you want to cancel the appointment?") {
		fmt.Println("❌ Cancellation aborted")
		return nil
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.Cancel(ctx, booking.CancelRequest{
		SessionID: *sessionID,
		Email:     *email,
		Phone:     *phone,
		Now:       now,
	})
	printResult(res)
	return err
}
