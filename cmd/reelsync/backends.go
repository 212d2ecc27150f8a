package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hilthontt/reelsync/internal/collab"
	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/events"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/messaging"
	"github.com/hilthontt/reelsync/internal/infrastructure/metrics"
	"github.com/hilthontt/reelsync/internal/persistence/db"
	"github.com/hilthontt/reelsync/internal/persistence/migrations"
	"github.com/hilthontt/reelsync/internal/persistence/repository"
	"github.com/redis/go-redis/v9"
)

// backends holds the stores selected by configuration and how to probe and
// close them.
type backends struct {
	changeLog     domain.ChangeLog
	presence      domain.PresenceStore
	changeProbe   collab.ProbeFunc
	presenceProbe collab.ProbeFunc
	redis         *redis.Client

	closers []func(context.Context) error
}

func openBackends(ctx context.Context, cfg *configs.Config, logger logging.Logger, m *metrics.Metrics) (b *backends, err error) {
	b = &backends{}
	defer func() {
		if err != nil {
			b.Close(context.Background())
		}
	}()

	buffer := cfg.Sync.ClientBuffer
	storage := cfg.Storage

	var sqlite *sql.DB
	if storage.ChangeLog == configs.BackendSQLite || storage.Presence == configs.BackendSQLite {
		if sqlite, err = openSQLite(storage.SQLite, logger); err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(context.Context) error { return sqlite.Close() })
	}
	sqliteProbe := func(context.Context) error { return migrations.CheckStatus(sqlite) }

	switch storage.ChangeLog {
	case configs.BackendSQLite:
		b.changeLog = repository.NewSQLiteChangeLogRepository(sqlite, buffer)
		b.changeProbe = sqliteProbe
	case configs.BackendMongo:
		client, err := db.NewMongoClient(ctx, storage.Mongo, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(ctx context.Context) error { return db.DisconnectMongo(ctx, client, logger) })

		mongoLog := repository.NewMongoChangeLogRepository(client.Database(storage.Mongo.Database), buffer)
		b.changeLog = mongoLog
		b.changeProbe = mongoLog.Probe
	default:
		b.changeLog = repository.NewChangeLogRepository(buffer)
	}

	switch storage.Presence {
	case configs.BackendSQLite:
		b.presence = repository.NewSQLitePresenceRepository(sqlite, buffer)
		b.presenceProbe = sqliteProbe
	case configs.BackendRedis:
		if err := b.openRedis(ctx, storage.Redis, logger); err != nil {
			return nil, err
		}
		client := b.redis
		b.presence = repository.NewRedisPresenceRepository(client, buffer)
		b.presenceProbe = func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
			}
			return nil
		}
	default:
		b.presence = repository.NewPresenceRepository(buffer)
	}

	observeDrops(b.changeLog, "changes", m)
	observeDrops(b.presence, "presence", m)

	if storage.Feed == configs.FeedRabbitMQ {
		rmq, err := messaging.NewRabbitMQ(storage.RabbitMQ.URI)
		if err != nil {
			return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		b.closers = append(b.closers, func(context.Context) error { rmq.Close(); return nil })

		b.changeLog = events.NewBroadcastChangeLog(
			b.changeLog,
			events.NewChangePublisher(rmq),
			events.NewChangeConsumer(rmq, logger, buffer),
		)
		logger.Info(logging.RabbitMQ, logging.Startup, "change feed fans out through rabbitmq", nil)
	}

	return b, nil
}

// observeDrops counts deliveries a store's in-process feed skipped.
func observeDrops(store any, feed string, m *metrics.Metrics) {
	if d, ok := store.(repository.DropObserver); ok {
		d.OnDrop(func(string) { m.FeedDropped(feed) })
	}
}

// openRedis connects once; presence and the rate limiter share the client.
func (b *backends) openRedis(ctx context.Context, cfg configs.RedisConfig, logger logging.Logger) error {
	if b.redis != nil {
		return nil
	}
	client, err := db.NewRedisClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	b.redis = client
	b.closers = append(b.closers, func(context.Context) error { return client.Close() })
	return nil
}

// Close releases backends in reverse order of opening.
func (b *backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func openSQLite(cfg configs.SQLiteConfig, logger logging.Logger) (*sql.DB, error) {
	conn, err := db.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := migrations.MigrateUp(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrating sqlite: %w", err)
		}
		logger.Info(logging.SQLite, logging.Migration, "sqlite schema is up to date", map[logging.ExtraKey]any{
			logging.Backend: cfg.Path,
		})
	}
	return conn, nil
}
