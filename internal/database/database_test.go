package database

import (
	"context"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/config"
)

func TestMigrations_Embedded(t *testing.T) {
	src, err := iofs.New(migrations, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)

	up, _, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
}

func TestNewPool_GivesUpAfterAttempts(t *testing.T) {
	retryDelay = 10 * time.Millisecond
	t.Cleanup(func() { retryDelay = 2 * time.Second })

	cfg := config.Defaults().Store.Postgres
	cfg.Host = "127.0.0.1"
	cfg.Port = "1"
	cfg.ConnectAttempts = 2

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, zap.NewNop())
	require.Error(t, err)
	require.Nil(t, pool)
	require.Contains(t, err.Error(), "connect to postgres")
}
