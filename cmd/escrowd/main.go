package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/escrowcore/ledgercore/internal/bootstrap"
	"github.com/escrowcore/ledgercore/internal/config"
)

// Exit codes per spec §6's process-wrapper contract.
const (
	exitOK              = 0
	exitConfigError     = 1
	exitDBUnavailable   = 2
	exitMigrationFailed = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		var migErr bootstrap.ErrMigrationFailed
		if errors.As(err, &migErr) {
			fmt.Fprintf(os.Stderr, "migration error: %v\n", err)
			return exitMigrationFailed
		}

		fmt.Fprintf(os.Stderr, "database unavailable: %v\n", err)
		return exitDBUnavailable
	}
	defer app.Close()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Router.Listen(":" + cfg.HTTPPort)
	}()

	go app.Scheduler.Run(ctx)

	select {
	case <-ctx.Done():
		app.Logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := app.Router.ShutdownWithContext(shutdownCtx); err != nil {
			app.Logger.Warnf("http shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			app.Logger.Errorf("http server stopped: %v", err)
			return exitDBUnavailable
		}
	}

	return exitOK
}
