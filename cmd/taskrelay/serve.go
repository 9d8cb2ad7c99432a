package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions, cmd *cobra.Command) error {
	cfg, logger, err := opts.load(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	logger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue_shards", cfg.Dispatcher.QueueShards,
		"redeliver", cfg.Dispatcher.Redeliver,
		"journal_database", cfg.Database.URL != "",
		"auth_enabled", cfg.Auth.JWTSecret != "")

	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil && !errors.Is(err, errNoDatabase) {
		return err
	}

	app, err := newApplication(ctx, cfg, logger, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.runner.Start(ctx); err != nil {
		_ = app.shutdown(context.Background())
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	return app.serveHTTP(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
}

// serveHTTP serves the API on addr until ctx ends or the listener fails,
// then shuts the server and the runner down within the configured timeout.
func (app *application) serveHTTP(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var failure error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case err := <-serveErr:
		if err != nil {
			app.logger.Error("server failed", "error", err)
			failure = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		failure = errors.Join(failure, fmt.Errorf("server shutdown failed: %w", err))
	}
	if err := app.shutdown(shutdownCtx); err != nil {
		failure = errors.Join(failure, fmt.Errorf("task runner shutdown failed: %w", err))
	}

	app.logger.Info("server shutdown completed")
	return failure
}
