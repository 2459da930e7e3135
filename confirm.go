package main

import (
	"context"
	"errors"
	"flag"

	"github.com/bobuk/gcalbook/internal/booking"
	"github.com/bobuk/gcalbook/internal/config"
	"github.com/bobuk/gcalbook/internal/confirm"
)

func confirmTicket(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	nowFlag := fs.String("now", "", "reference instant in RFC 3339 (default: now)")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return errors.New("usage: gcalbook confirm [-now instant] <ticket-id> <yes|no>")
	}
	decision, err := confirm.ParseDecision(fs.Arg(1))
	if err != nil {
		return err
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

	res, err := a.engine.ResolveConfirmation(ctx, booking.ResolveRequest{
		TicketID: fs.Arg(0),
		Decision: decision,
		Now:      now,
	})
	printResult(res)
	if err != nil {
		return err
	}
	return a.resolvePending(ctx, res, clockFor(*nowFlag, now))
}
