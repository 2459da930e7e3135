package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bobuk/gcalbook/internal/config"
	"github.com/bobuk/gcalbook/internal/httpapi"
)

func serve(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	fs.Parse(args)

	if cfg.General.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	api := httpapi.New(a.engine, httpapi.Options{
		RatePerMinute: cfg.Server.RatePerMinute,
		RateBurst:     cfg.Server.RateBurst,
		Logger:        a.logger,
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.sweepTickets(ctx, cfg.Server.SweepInterval.Duration)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening",
			zap.String("addr", *addr),
			zap.Bool("serialized_commits", a.engine.Serialized()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down http server: %w", err)
	}
	return nil
}

// sweepTickets purges tickets past their retention every interval until ctx is done.
func (a *app) sweepTickets(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := a.broker.Sweep(ctx, now); err != nil {
				a.logger.Warn("ticket sweep failed", zap.Error(err))
			}
		}
	}
}
