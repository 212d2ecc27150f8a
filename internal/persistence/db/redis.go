package db

import (
	"context"
	"fmt"
	"time"

	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/redis/go-redis/v9"
)

func NewRedisClient(ctx context.Context, cfg configs.RedisConfig, logger logging.Logger) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info(logging.Redis, logging.Startup, "connected to redis", map[logging.ExtraKey]any{
		logging.Backend: cfg.Addr,
	})
	return client, nil
}
