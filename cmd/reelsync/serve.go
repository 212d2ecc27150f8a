package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hilthontt/reelsync/internal/collab"
	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/metrics"
	"github.com/hilthontt/reelsync/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/reelsync/internal/infrastructure/tracing"
	"github.com/hilthontt/reelsync/internal/infrastructure/ws"
	"github.com/hilthontt/reelsync/internal/presentation/api"
	"github.com/hilthontt/reelsync/internal/presentation/handler/changes"
	"github.com/hilthontt/reelsync/internal/presentation/handler/health"
	"github.com/hilthontt/reelsync/internal/presentation/handler/presence"
	"github.com/hilthontt/reelsync/internal/presentation/handler/realtime"
	"github.com/hilthontt/reelsync/internal/presentation/handler/session"
	"github.com/spf13/cobra"
)

const probeTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		shutdownTracer, err := tracing.InitTracer(serviceName, cfg.Tracing)
		if err != nil {
			return err
		}
		defer shutdownTracer(context.Background())

		m := metrics.New()
		b, err := openBackends(ctx, cfg, logger, m)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.Close(closeCtx); err != nil {
				logger.Error(logging.General, logging.Shutdown, "failed to close backends", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}()

		probeCtx, cancelProbe := context.WithTimeout(ctx, probeTimeout)
		availability := collab.ResolveAvailability(probeCtx, cfg.Features, b.changeProbe, b.presenceProbe, logger)
		cancelProbe()

		clock := collab.RealClock{}
		hub := ws.NewHub(cfg.HTTP.AllowedOrigins, logger)
		verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		writer := collab.NewWriter(b.changeLog, nil, availability, clock, collab.NewULIDGenerator(clock), logger, m)

		var cache ratelimiter.GetterSetter
		if b.redis != nil {
			cache = ratelimiter.NewRedis(b.redis, "reelsync:")
		}
		limiter := ratelimiter.New(ratelimiter.Options{
			MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
			MaxBurst:         cfg.RateLimiter.MaxBurst,
			CacheTTL:         cfg.RateLimiter.CacheTTL,
			Cache:            cache,
		})
		defer limiter.Close()

		app := api.NewApplication(*cfg, api.Handlers{
			Health:   health.NewHandler(availability),
			Changes:  changes.NewHandler(writer, b.changeLog, availability, cfg.Sync.ChangeHistoryLimit, logger),
			Presence: presence.NewHandler(b.presence, availability, clock, cfg.Sync.StalenessWindow, logger),
			Realtime: realtime.NewHandler(hub, verifier, collab.SessionDeps{
				ChangeLog:    b.changeLog,
				Presence:     b.presence,
				Availability: availability,
				Clock:        clock,
				Logger:       logger,
				Metrics:      m,
			}, cfg.Sync, logger),
			Session: session.NewHandler(verifier, cfg.HTTP.SecureCookies),
		}, logger, limiter, verifier, m)
		app.OnShutdown(hub.DisconnectAll)

		return app.Run(ctx, app.Mount())
	},
}
