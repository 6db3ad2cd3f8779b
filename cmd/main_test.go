package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Shivanand-hulikatti/festreg/internal/auth"
	"github.com/Shivanand-hulikatti/festreg/internal/config"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
	"github.com/Shivanand-hulikatti/festreg/internal/service"
	"github.com/Shivanand-hulikatti/festreg/internal/store/memory"
	"github.com/Shivanand-hulikatti/festreg/internal/store/sqlite"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["migrate"])
	require.True(t, names["settings"])
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateRequiresPostgres(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "festreg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", path})
	err := root.Execute()
	require.ErrorContains(t, err, "migrations only apply to")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := openStore(ctx, config.StoreConfig{Driver: config.DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, s)
	closeFn()

	path := filepath.Join(t.TempDir(), "data", "festreg.db")
	s, closeFn, err = openStore(ctx, config.StoreConfig{Driver: config.DriverSQLite, SQLite: config.SQLiteConfig{Path: path}}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &sqlite.Store{}, s)
	closeFn()
	require.FileExists(t, path)
}

func gateStatus(t *testing.T, settings auth.SettingReader, name, secret string) int {
	t.Helper()
	h := auth.Gate(settings, name)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.Header, secret)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestSeedSettings_OpensGates(t *testing.T) {
	ctx := context.Background()
	svc := service.NewSettingService(repository.NewSettingRepository(memory.New()), nil)

	core, logs := observer.New(zap.WarnLevel)
	require.NoError(t, seedSettings(ctx, svc, config.Defaults(), zap.New(core)))
	require.Equal(t, 2, logs.FilterMessage("gate secret not set; gated routes answer 503 until it is").Len())
	require.Equal(t, http.StatusServiceUnavailable, gateStatus(t, svc, model.SettingAdminGate, ""))

	cfg := config.Defaults()
	cfg.Gate = config.GateConfig{Admin: "admin-pw", Registration: "desk-pw"}
	cfg.Payment.UPIAddress = "fest@upi"
	require.NoError(t, seedSettings(ctx, svc, cfg, zap.NewNop()))

	require.Equal(t, http.StatusOK, gateStatus(t, svc, model.SettingAdminGate, "admin-pw"))
	require.Equal(t, http.StatusOK, gateStatus(t, svc, model.SettingRegisterGate, "desk-pw"))
	require.Equal(t, http.StatusUnauthorized, gateStatus(t, svc, model.SettingRegisterGate, "admin-pw"))
	upi, err := svc.SettingValue(ctx, model.SettingUPI)
	require.NoError(t, err)
	require.Equal(t, "fest@upi", upi)

	// a restart with different config keeps what operators stored
	_, err = svc.UpsertSetting(ctx, model.SettingAdminGate, "rotated")
	require.NoError(t, err)
	cfg.Gate.Admin = "from-config"
	require.NoError(t, seedSettings(ctx, svc, cfg, zap.NewNop()))
	require.Equal(t, http.StatusOK, gateStatus(t, svc, model.SettingAdminGate, "rotated"))
	require.Equal(t, http.StatusUnauthorized, gateStatus(t, svc, model.SettingAdminGate, "from-config"))
}

func TestSettingsSetCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "festreg.db")
	cfgPath := filepath.Join(dir, "festreg.yaml")
	body := "store:\n  driver: sqlite\n  sqlite:\n    path: " + dbPath + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"settings", "set", "admin", "s3cret", "--config", cfgPath})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), `setting "admin" written`)

	st, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	svc := service.NewSettingService(repository.NewSettingRepository(st), nil)
	require.Equal(t, http.StatusOK, gateStatus(t, svc, model.SettingAdminGate, "s3cret"))

	root = newRootCmd()
	root.SetArgs([]string{"settings", "set", "admin", "--config", cfgPath})
	require.Error(t, root.Execute())
}
