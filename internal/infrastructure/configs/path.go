package configs

import (
	"os"

	"github.com/hilthontt/reelsync/internal/infrastructure/env"
)

var candidatePaths = []string{
	"./config.yaml",
	"./config.yml",
	"./tmp/config.yaml",
	"/etc/reelsync/config.yaml",
	"/app/config.yaml", // common in Docker
}

// DetermineConfigPath resolves the config file from the flag value, the
// REELSYNC_CONFIG variable, then a list of well-known locations. An empty
// result means defaults and environment only.
func DetermineConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if configPath := env.GetString("REELSYNC_CONFIG", ""); configPath != "" {
		return configPath
	}

	for _, p := range candidatePaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
