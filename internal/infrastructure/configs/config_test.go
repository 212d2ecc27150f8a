package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REELSYNC_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uint16(8080), cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.Sync.PresenceInterval)
	assert.Equal(t, 30*time.Second, cfg.Sync.StalenessWindow)
	assert.Equal(t, 100, cfg.Sync.ChangeHistoryLimit)
	assert.True(t, cfg.Features.ChangeLog)
	assert.True(t, cfg.Features.Presence)
	assert.Equal(t, BackendMemory, cfg.Storage.ChangeLog)
	assert.Equal(t, FeedStore, cfg.Storage.Feed)
	assert.Equal(t, "reelsync", cfg.Auth.Issuer)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
auth:
  jwt_secret: from-file
sync:
  presence_interval: 5s
  staleness_window: 15s
storage:
  change_log: sqlite
  sqlite:
    path: /tmp/reelsync-test.db
`), 0o600))

	t.Setenv("REELSYNC_JWT_SECRET", "")
	t.Setenv("FEATURE_PRESENCE", "false")
	t.Setenv("STORAGE_PRESENCE", "redis")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(9090), cfg.HTTP.Port)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.Sync.PresenceInterval)
	assert.Equal(t, 15*time.Second, cfg.Sync.StalenessWindow)
	assert.Equal(t, BackendSQLite, cfg.Storage.ChangeLog)
	assert.Equal(t, "/tmp/reelsync-test.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, BackendRedis, cfg.Storage.Presence)
	assert.False(t, cfg.Features.Presence)
	assert.True(t, cfg.Features.ChangeLog)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"REELSYNC_JWT_SECRET": ""}},
		{"unknown change log backend", map[string]string{"STORAGE_CHANGE_LOG": "redis"}},
		{"unknown presence backend", map[string]string{"STORAGE_PRESENCE": "mongo"}},
		{"unknown feed", map[string]string{"STORAGE_FEED": "kafka"}},
		{"window shorter than interval", map[string]string{"SYNC_STALENESS_WINDOW": "5s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REELSYNC_JWT_SECRET", "s3cret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestDetermineConfigPath(t *testing.T) {
	t.Setenv("REELSYNC_CONFIG", "/from/env.yaml")
	assert.Equal(t, "/from/flag.yaml", DetermineConfigPath("/from/flag.yaml"))
	assert.Equal(t, "/from/env.yaml", DetermineConfigPath(""))
}
