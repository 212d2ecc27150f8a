package main

import (
	"fmt"

	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/persistence/db"
	"github.com/hilthontt/reelsync/internal/persistence/migrations"
	"github.com/hilthontt/reelsync/internal/persistence/repository"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations and ensure Mongo indexes for the configured backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		storage := cfg.Storage
		ran := false

		if storage.ChangeLog == configs.BackendSQLite || storage.Presence == configs.BackendSQLite {
			conn, err := db.OpenSQLite(storage.SQLite.Path)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := migrations.MigrateUp(conn); err != nil {
				return fmt.Errorf("migrating sqlite: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema at %s is up to date\n", storage.SQLite.Path)
			ran = true
		}

		if storage.ChangeLog == configs.BackendMongo {
			client, err := db.NewMongoClient(cmd.Context(), storage.Mongo, logger)
			if err != nil {
				return err
			}
			defer db.DisconnectMongo(cmd.Context(), client, logger)

			log := repository.NewMongoChangeLogRepository(client.Database(storage.Mongo.Database), 0)
			if err := log.EnsureIndexes(cmd.Context(), storage.Mongo.RetentionDays); err != nil {
				return fmt.Errorf("creating mongo indexes: %w", err)
			}
			logger.Info(logging.Mongo, logging.Migration, "mongo indexes ensured", map[logging.ExtraKey]any{
				logging.Backend: storage.Mongo.Database,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "mongo indexes on %s.%s are in place\n", storage.Mongo.Database, db.ChangeRecordsCollection)
			ran = true
		}

		if !ran {
			fmt.Fprintln(cmd.OutOrStdout(), "no persistent backends configured; nothing to migrate")
		}
		return nil
	},
}
