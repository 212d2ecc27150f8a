package db

import (
	"context"
	"fmt"
	"time"

	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	ChangeRecordsCollection = "change_records"

	DefaultConnectionTimeout = 20 * time.Second
)

func NewMongoClient(ctx context.Context, cfg configs.MongoConfig, logger logging.Logger) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, timeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info(logging.Mongo, logging.Startup, "connected to mongodb", map[logging.ExtraKey]any{
		logging.Backend: cfg.Database,
	})
	return client, nil
}

func DisconnectMongo(ctx context.Context, client *mongo.Client, logger logging.Logger) error {
	if client == nil {
		return nil
	}

	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Disconnect(disconnectCtx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}

	logger.Info(logging.Mongo, logging.Shutdown, "disconnected from mongodb", nil)
	return nil
}
