package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	apimw "github.com/phrazzld/taskrelay/internal/api/middleware"
	"github.com/phrazzld/taskrelay/internal/service/auth"
)

// RouterConfig holds the dependencies of the HTTP router. Optional fields
// switch their feature off when nil.
type RouterConfig struct {
	Logger *slog.Logger
	Work   *WorkHandler

	// Tokens enables bearer authentication and scope checks on /api.
	Tokens auth.TokenService

	// RateLimiter throttles /api per client.
	RateLimiter *apimw.RateLimiter

	// Requests receives per-request metrics.
	Requests apimw.RequestObserver

	// MetricsHandler is served at /metrics.
	MetricsHandler http.Handler
}

// NewRouter builds the application router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(apimw.NewTraceMiddleware(cfg.Logger))
	if cfg.Requests != nil {
		r.Use(apimw.NewMetricsMiddleware(cfg.Requests))
	}

	scope := func(string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.Tokens != nil {
			r.Use(apimw.NewAuthMiddleware(cfg.Tokens).Authenticate)
			scope = apimw.RequireScope
		}
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Handler)
		}

		r.With(scope(auth.ScopeSubmit)).Post("/work", cfg.Work.SubmitWork)

		r.Group(func(r chi.Router) {
			r.Use(scope(auth.ScopeRead))
			r.Get("/work", cfg.Work.ListWork)
			r.Get("/work/{id}", cfg.Work.GetWork)
			r.Get("/work/{id}/events", cfg.Work.GetWorkEvents)
		})

		r.Group(func(r chi.Router) {
			r.Use(scope(auth.ScopeCancel))
			r.Delete("/work/{id}", cfg.Work.CancelWork)
			r.Delete("/groups/{group}", cfg.Work.CancelGroup)
			r.Post("/cancel-all", cfg.Work.CancelAll)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			cfg.Logger.Error("failed to write health check response", "error", err)
		}
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
