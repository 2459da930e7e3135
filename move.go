package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/bobuk/gcalbook/internal/booking"
	"github.com/bobuk/gcalbook/internal/config"
)

func moveAppointment(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	email := fs.String("email", "", "email the appointment was booked with")
	phone := fs.String("phone", "", "phone the appointment was booked with")
	date := fs.String("date", "", "new date")
	clock := fs.String("time", "", "new time")
	duration := fs.Duration("duration", 0, "new length (default: keep the current one)")
	sessionID := fs.String("session", "cli", "session id owning confirmation tickets")
	nowFlag := fs.String("now", "", "reference instant in RFC 3339 (default: now)")
	fs.Parse(args)

	if (*email == "" && *phone == "") || *date == "" || *clock == "" {
		fs.Usage()
		return errors.New("-email or -phone, -date and -time are required")
	}
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

	fmt.Println("🔄 Moving appointment...")
	res, err := a.engine.Move(ctx, booking.MoveRequest{
		SessionID: *sessionID,
		Email:     *email,
		Phone:     *phone,
		Date:      *date,
		Time:      *clock,
		Duration:  *duration,
		Now:       now,
	})
	printResult(res)
	if err != nil {
		return err
	}
	return a.resolvePending(ctx, res, clockFor(*nowFlag, now))
}
