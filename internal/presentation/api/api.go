package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/metrics"
	"github.com/hilthontt/reelsync/internal/infrastructure/ratelimiter"
	changesHandler "github.com/hilthontt/reelsync/internal/presentation/handler/changes"
	healthHandler "github.com/hilthontt/reelsync/internal/presentation/handler/health"
	presenceHandler "github.com/hilthontt/reelsync/internal/presentation/handler/presence"
	realtimeHandler "github.com/hilthontt/reelsync/internal/presentation/handler/realtime"
	sessionHandler "github.com/hilthontt/reelsync/internal/presentation/handler/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Handlers struct {
	Health   *healthHandler.Handler
	Changes  *changesHandler.Handler
	Presence *presenceHandler.Handler
	Realtime *realtimeHandler.Handler
	Session  *sessionHandler.Handler
}

type Application struct {
	config      configs.Config
	handlers    Handlers
	logger      logging.Logger
	ratelimiter ratelimiter.Limiter
	verifier    *auth.Verifier
	metrics     *metrics.Metrics
	onShutdown  []func()
}

func NewApplication(
	config configs.Config,
	handlers Handlers,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
	verifier *auth.Verifier,
	metrics *metrics.Metrics,
) *Application {
	return &Application{
		config:      config,
		handlers:    handlers,
		logger:      logger,
		ratelimiter: ratelimiter,
		verifier:    verifier,
		metrics:     metrics,
	}
}

// OnShutdown registers fn to run when the server starts shutting down.
// Hijacked WebSocket connections are not closed by http.Server.Shutdown.
func (app *Application) OnShutdown(fn func()) {
	app.onShutdown = append(app.onShutdown, fn)
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(app.metricsMiddleware)
	r.Use(app.enableCors)

	r.Handle("/metrics", app.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.handlers.Health.GetHealth)
		r.Get("/healthz", app.handlers.Health.GetHealth)
		r.Get("/live", app.handlers.Health.GetHealth)
		r.Get("/ready", app.handlers.Health.GetReady)

		r.With(middleware.Timeout(requestTimeout)).Post("/session", app.handlers.Session.CreateSession)
		r.With(middleware.Timeout(requestTimeout)).Delete("/session", app.handlers.Session.DeleteSession)

		r.Route("/projects/{projectId}", func(r chi.Router) {
			// long-lived; authenticates on the socket itself
			r.Get("/sync", app.handlers.Realtime.Sync)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))
				r.Use(app.authMiddleware)

				r.With(app.rateLimiterMiddleware).Post("/changes", app.handlers.Changes.CreateChange)
				r.Get("/changes", app.handlers.Changes.ListChanges)
				r.Get("/presence", app.handlers.Presence.GetPresence)
			})
		})
	})

	return otelhttp.NewHandler(r, "reelsync.http")
}

// Run serves until ctx ends, then drains and shuts down gracefully.
func (app *Application) Run(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      mux,
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}
	for _, fn := range app.onShutdown {
		srv.RegisterOnShutdown(fn)
	}

	shutdown := make(chan error, 1)
	go func() {
		<-ctx.Done()
		app.handlers.Health.Drain()
		app.logger.Info(logging.General, logging.Shutdown, "shutting down server", map[logging.ExtraKey]any{
			"addr": srv.Addr,
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdown; err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})
	return nil
}
