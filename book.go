package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/bobuk/gcalbook/internal/booking"
	"github.com/bobuk/gcalbook/internal/config"
)

func bookAppointment(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	name := fs.String("name", "", "customer name")
	email := fs.String("email", "", "customer email")
	phone := fs.String("phone", "", "customer phone")
	service := fs.String("service", "", "service to book")
	date := fs.String("date", "", "date, e.g. 'tomorrow' or '25th december'")
	clock := fs.String("time", "", "time, e.g. '3pm' or '15:30'")
	duration := fs.Duration("duration", 0, "appointment length (default from config)")
	sessionID := fs.String("session", "cli", "session id owning confirmation tickets")
	nowFlag := fs.String("now", "", "reference instant in RFC 3339 (default: now)")
	fs.Parse(args)

	if *name == "" || *email == "" || *date == "" || *clock == "" {
		fs.Usage()
		return errors.New("-name, -email, -date and -time are required")
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

	fmt.Println("🚀 Booking appointment...")
	res, err := a.engine.Create(ctx, booking.CreateRequest{
		SessionID: *sessionID,
		Name:      *name,
		Email:     *email,
		Phone:     *phone,
		Service:   *service,
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
