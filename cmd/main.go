// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/config"
	"github.com/Shivanand-hulikatti/festreg/internal/database"
	"github.com/Shivanand-hulikatti/festreg/internal/handler"
	"github.com/Shivanand-hulikatti/festreg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/festreg/internal/logger"
	"github.com/Shivanand-hulikatti/festreg/internal/metrics"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/notify"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
	"github.com/Shivanand-hulikatti/festreg/internal/service"
	"github.com/Shivanand-hulikatti/festreg/internal/store"
	"github.com/Shivanand-hulikatti/festreg/internal/store/memory"
	"github.com/Shivanand-hulikatti/festreg/internal/store/mongostore"
	"github.com/Shivanand-hulikatti/festreg/internal/store/postgres"
	"github.com/Shivanand-hulikatti/festreg/internal/store/sqlite"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "festreg",
		Short:         "Festival registration desk and settlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSettingsCmd())
	return root
}

// setup loads configuration and builds the logger shared by every command.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(viper.New(), cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if cfg.Store.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate: store.driver is %q, migrations only apply to %q", cfg.Store.Driver, config.DriverPostgres)
			}
			return database.Migrate(cfg.Store.Postgres, log)
		},
	}
}

func newSettingsCmd() *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Manage stored settings (gate secrets, UPI address)",
	}
	settings.AddCommand(&cobra.Command{
		Use:   "set NAME VALUE",
		Short: "Create or overwrite a setting in the configured store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			st, closeStore, err := openStore(cmd.Context(), cfg.Store, log)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer closeStore()

			svc := service.NewSettingService(repository.NewSettingRepository(st), log)
			if _, err := svc.UpsertSetting(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "setting %q written\n", args[0])
			return nil
		},
	})
	return settings
}

// seedSettings writes the configured gate secrets and UPI address into
// settings that do not exist yet. Stored values always win.
func seedSettings(ctx context.Context, svc *service.SettingService, cfg config.Config, log *zap.Logger) error {
	seeds := []struct{ name, value string }{
		{model.SettingAdminGate, cfg.Gate.Admin},
		{model.SettingRegisterGate, cfg.Gate.Registration},
		{model.SettingUPI, cfg.Payment.UPIAddress},
	}
	for _, sd := range seeds {
		if _, err := svc.EnsureSetting(ctx, sd.name, sd.value); err != nil {
			return fmt.Errorf("seed setting %s: %w", sd.name, err)
		}
	}
	for _, gate := range []string{model.SettingAdminGate, model.SettingRegisterGate} {
		_, err := svc.SettingValue(ctx, gate)
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("gate secret not set; gated routes answer 503 until it is",
				zap.String("setting", gate),
				zap.String("config_key", "gate."+gate))
			continue
		}
		if err != nil {
			return fmt.Errorf("read setting %s: %w", gate, err)
		}
	}
	return nil
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := database.Migrate(cfg.Postgres, log); err != nil {
			return nil, nil, err
		}
		pool, err := database.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn("close sqlite", zap.Error(err))
			}
		}, nil
	case config.DriverMongo:
		s, err := mongostore.Open(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(context.Background()); err != nil {
				log.Warn("close mongo", zap.Error(err))
			}
		}, nil
	default:
		log.Warn("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	// ── 1. Connect the store ─────────────────────────────────────────────
	st, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closeStore()
	log.Info("store ready", zap.String("driver", cfg.Store.Driver))

	// ── 2. Wire up layers ────────────────────────────────────────────────
	m := metrics.New()
	notifier, err := notify.New(cfg.Notify, log)
	if err != nil {
		return err
	}

	eventRepo := repository.NewEventRepository(st)
	regRepo := repository.NewRegistrationRepository(st)
	maintainer := service.NewMaintainer(eventRepo, regRepo, log, m)
	eventSvc := service.NewEventService(eventRepo, regRepo, maintainer, log)
	settingSvc := service.NewSettingService(repository.NewSettingRepository(st), log)
	if err := seedSettings(ctx, settingSvc, cfg, log); err != nil {
		return err
	}
	salesSvc := service.NewSalesService(repository.NewServiceRecordRepository(st), settingSvc, cfg.Payment.UPILabel, m, log)

	sessions := lifecycle.NewSessions(lifecycle.Deps{
		Registrar: maintainer,
		Catalog:   eventSvc,
		Settings:  settingSvc,
		Notifier:  notifier,
		UPILabel:  cfg.Payment.UPILabel,
		Location:  cfg.Payment.Location(),
		Metrics:   m,
		Log:       log,
	}, cfg.Session.TTL, cfg.Session.CleanupInterval)

	// ── 3. Build the router ───────────────────────────────────────────────
	router := handler.Router{
		Events:       handler.NewEventHandler(eventSvc, settingSvc, log),
		Registration: handler.NewRegistrationHandler(sessions, salesSvc, log),
		Gates:        settingSvc,
		Metrics:      m,
		Log:          log,
	}

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
