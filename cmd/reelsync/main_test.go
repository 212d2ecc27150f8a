package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/metrics"
	"github.com/hilthontt/reelsync/internal/persistence/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("REELSYNC_JWT_SECRET", "cli-secret")
	t.Setenv("LOGGER_LEVEL", "error")

	out := execute(t, "token", "--actor", "user_alice", "--project", "project-1")

	claims, err := auth.NewVerifier("cli-secret", "reelsync").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user_alice", claims.ActorID())
	assert.True(t, claims.CanAccess("project-1"))
	assert.False(t, claims.CanAccess("project-2"))
}

func TestMigrateCommand_NothingToDo(t *testing.T) {
	t.Setenv("REELSYNC_JWT_SECRET", "cli-secret")
	t.Setenv("LOGGER_LEVEL", "error")

	out := execute(t, "migrate")
	assert.Contains(t, out, "nothing to migrate")
}

func TestOpenBackends_SQLite(t *testing.T) {
	cfg := &configs.Config{
		Sync: configs.SyncConfig{ClientBuffer: 8},
		Storage: configs.StorageConfig{
			ChangeLog: configs.BackendSQLite,
			Presence:  configs.BackendSQLite,
			Feed:      configs.FeedStore,
			SQLite:    configs.SQLiteConfig{Path: ":memory:", AutoMigrate: true},
		},
	}

	b, err := openBackends(context.Background(), cfg, logging.NewNop(), nil)
	require.NoError(t, err)
	defer b.Close(context.Background())

	require.NotNil(t, b.changeProbe)
	require.NotNil(t, b.presenceProbe)
	assert.NoError(t, b.changeProbe(context.Background()))
	assert.NoError(t, b.presenceProbe(context.Background()))

	last, err := b.changeLog.LastCounter(context.Background(), "project-1", "user_alice")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestOpenBackends_SQLiteWithoutMigrationFailsProbe(t *testing.T) {
	cfg := &configs.Config{
		Storage: configs.StorageConfig{
			ChangeLog: configs.BackendSQLite,
			Presence:  configs.BackendMemory,
			Feed:      configs.FeedStore,
			SQLite:    configs.SQLiteConfig{Path: ":memory:"},
		},
	}

	b, err := openBackends(context.Background(), cfg, logging.NewNop(), nil)
	require.NoError(t, err)
	defer b.Close(context.Background())

	assert.Error(t, b.changeProbe(context.Background()))
	assert.Nil(t, b.presenceProbe)
	assert.IsType(t, repository.NewPresenceRepository(1), b.presence)
}

func TestOpenBackends_FeedDropsAreCounted(t *testing.T) {
	cfg := &configs.Config{
		Sync: configs.SyncConfig{ClientBuffer: 1},
		Storage: configs.StorageConfig{
			ChangeLog: configs.BackendMemory,
			Presence:  configs.BackendMemory,
			Feed:      configs.FeedStore,
		},
	}
	m := metrics.New()

	b, err := openBackends(context.Background(), cfg, logging.NewNop(), m)
	require.NoError(t, err)
	defer b.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.changeLog.Subscribe(ctx, "project-1")
	require.NoError(t, err)
	defer sub.Close()

	for i, id := range []string{"r1", "r2"} {
		require.NoError(t, b.changeLog.Append(ctx, &domain.ChangeRecord{
			ID:           id,
			ProjectID:    "project-1",
			ActorID:      "user_alice",
			ChangeType:   domain.ChangeFolderCreated,
			EntityType:   domain.EntityFolder,
			ActorCounter: uint64(i + 1),
		}))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `reelsync_feed_dropped_total{feed="changes"} 1`)
}
