package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskrelay/internal/api"
	apimw "github.com/phrazzld/taskrelay/internal/api/middleware"
	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/platform/metrics"
	"github.com/phrazzld/taskrelay/internal/platform/postgres"
	"github.com/phrazzld/taskrelay/internal/redact"
	"github.com/phrazzld/taskrelay/internal/service/auth"
	"github.com/phrazzld/taskrelay/internal/task"
)

// application holds the wired dependencies of the serve command.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil when no journal database is configured.
	db *sql.DB

	metrics  *metrics.Metrics
	types    *task.TypeRegistry
	runner   *task.TaskRunner
	eventLog *api.EventLog
	emitter  *events.InMemoryEventEmitter

	// tokens is nil when authentication is disabled.
	tokens auth.TokenService
}

// newTypeRegistry returns the task types this binary can run.
func newTypeRegistry() (*task.TypeRegistry, error) {
	types := task.NewTypeRegistry()
	if err := task.RegisterBuiltins(types); err != nil {
		return nil, fmt.Errorf("failed to register builtin task types: %w", err)
	}
	return types, nil
}

// newApplication wires the runner, the event pipeline and the optional
// journal and auth services. db may be nil.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		metrics:  metrics.New(),
		eventLog: api.NewEventLog(api.DefaultEventLogCapacity),
	}

	var err error
	app.types, err = newTypeRegistry()
	if err != nil {
		return nil, err
	}

	opts := []task.Option{
		task.WithObserver(app.metrics),
		task.WithProtocolErrorHandler(func(err error) {
			logger.Error("task broke the result protocol", redact.ErrorAttr(err))
		}),
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db, "up", logger); err != nil {
			return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
		}
		opts = append(opts, task.WithJournal(postgres.NewPostgresJournal(db)))
		if !cfg.Dispatcher.Redeliver {
			logger.Warn("database configured but redelivery is off, the journal stays unused")
		}
	}

	app.runner = task.NewTaskRunner(app.types, task.TaskRunnerConfig{
		QueueShards: cfg.Dispatcher.QueueShards,
		QueueSize:   cfg.Dispatcher.QueueSize,
		MaxParallel: cfg.Dispatcher.MaxParallel,
		Redeliver:   cfg.Dispatcher.Redeliver,
	}, logger, opts...)

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(task.NewRequestEventHandler(app.runner, app.handlers, logger))

	if cfg.Auth.JWTSecret != "" {
		app.tokens, err = auth.NewTokenService(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token service: %w", err)
		}
		logger.Info("bearer authentication enabled", "token_lifetime", cfg.Auth.TokenLifetime)
	} else {
		logger.Warn("no JWT secret configured, the API is unauthenticated")
	}

	return app, nil
}

// router builds the HTTP handler of the application.
func (app *application) router() http.Handler {
	rc := api.RouterConfig{
		Logger:         app.logger,
		Work:           api.NewWorkHandler(app.emitter, app.runner, app.eventLog, app.logger),
		Tokens:         app.tokens,
		Requests:       app.metrics,
		MetricsHandler: app.metrics.Handler(),
	}
	if app.config.API.RateLimit > 0 {
		rc.RateLimiter = apimw.NewRateLimiter(app.config.API.RateLimit, app.config.API.Burst)
	}
	return api.NewRouter(rc)
}

// shutdown asks every unit to quit, stops the runner and closes the
// database. With redelivery on, queued units are left to Stop so their
// journal entries survive for the next start.
func (app *application) shutdown(ctx context.Context) error {
	if !app.config.Dispatcher.Redeliver {
		result, err := app.runner.CancelAll(task.ReasonShutdown)
		if err != nil {
			app.logger.Error("failed to cancel work on shutdown", "error", err)
		} else {
			app.logger.Info("cancelled work on shutdown",
				"interrupted", len(result.Interrupted),
				"not_executed", len(result.NotExecuted))
		}
	}

	stopErr := app.runner.Stop(ctx)
	if stopErr != nil {
		app.logger.Error("task runner did not stop cleanly", "error", stopErr)
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", "error", err)
		}
	}
	return stopErr
}
