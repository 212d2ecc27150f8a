package main

import (
	"fmt"
	"os"

	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/spf13/cobra"
)

const serviceName = "reelsync"

var configFlag string

var rootCmd = &cobra.Command{
	Use:           "reelsync",
	Short:         "Collaborative change propagation and presence service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config.yaml (defaults to REELSYNC_CONFIG or well-known locations)")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and builds the logger. The caller must Sync the logger.
func loadConfig() (*configs.Config, logging.Logger, error) {
	cfg, err := configs.Load(configs.DetermineConfigPath(configFlag))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return cfg, logger, nil
}
