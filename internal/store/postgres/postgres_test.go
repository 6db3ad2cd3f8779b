package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/config"
	"github.com/Shivanand-hulikatti/festreg/internal/database"
	"github.com/Shivanand-hulikatti/festreg/internal/store"
	"github.com/Shivanand-hulikatti/festreg/internal/store/storetest"
)

// The suite needs a disposable database; set FESTREG_TEST_POSTGRES_HOST to run it.
func TestConformance(t *testing.T) {
	host := os.Getenv("FESTREG_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("FESTREG_TEST_POSTGRES_HOST not set")
	}
	cfg := config.Defaults().Store.Postgres
	cfg.Host = host
	if db := os.Getenv("FESTREG_TEST_POSTGRES_DB"); db != "" {
		cfg.DBName = db
	}

	require.NoError(t, database.Migrate(cfg, zap.NewNop()))
	pool, err := database.NewPool(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	storetest.Run(t, func(t *testing.T) store.Store {
		_, err := pool.Exec(context.Background(), `TRUNCATE documents`)
		require.NoError(t, err)
		return New(pool)
	})
}
