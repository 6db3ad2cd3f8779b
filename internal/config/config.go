// Package config provides configuration types, defaults and loading for festreg.
//
// Values come from (highest first) FESTREG_* environment variables, an optional
// YAML file, and Defaults().
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // payment.timezone must resolve in minimal containers

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Notification drivers.
const (
	NotifyLog     = "log"
	NotifyEmailJS = "emailjs"
)

// Config holds all configuration options.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Store   StoreConfig   `mapstructure:"store"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Payment PaymentConfig `mapstructure:"payment"`
	Session SessionConfig `mapstructure:"session"`
	Gate    GateConfig    `mapstructure:"gate"`
	Log     LogConfig     `mapstructure:"log"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"` // memory, postgres, sqlite, mongo
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnectAttempts int    `mapstructure:"connect_attempts"`
}

// DSN builds a libpq-compatible connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MigrateURL builds the pgx5:// URL golang-migrate expects.
func (c PostgresConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// SQLiteConfig configures the embedded store.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// MongoConfig configures the MongoDB store.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// NotifyConfig selects the receipt sender.
type NotifyConfig struct {
	Driver  string        `mapstructure:"driver"` // log, emailjs
	Timeout time.Duration `mapstructure:"timeout"`
	EmailJS EmailJSConfig `mapstructure:"emailjs"`
}

// EmailJSConfig holds the mail relay credentials.
type EmailJSConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ServiceID  string `mapstructure:"service_id"`
	TemplateID string `mapstructure:"template_id"`
	UserID     string `mapstructure:"user_id"`
	Origin     string `mapstructure:"origin"`
}

// PaymentConfig shapes the payment request shown to participants.
// UPIAddress seeds the "upi" setting when the store has none.
type PaymentConfig struct {
	UPILabel   string `mapstructure:"upi_label"`
	UPIAddress string `mapstructure:"upi_address"`
	Timezone   string `mapstructure:"timezone"`
}

// Location resolves Timezone, falling back to UTC.
func (p PaymentConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SessionConfig controls registration session expiry.
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// GateConfig holds the initial gate secrets. They are written to the
// "admin" and "registration" settings at startup only when those settings
// do not exist yet; later changes go through the admin API.
type GateConfig struct {
	Admin        string `mapstructure:"admin"`
	Registration string `mapstructure:"registration"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Defaults returns the development configuration.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            "5432",
				User:            "postgres",
				Password:        "postgres",
				DBName:          "festreg",
				SSLMode:         "disable",
				MaxConns:        20,
				MinConns:        2,
				ConnectAttempts: 5,
			},
			SQLite: SQLiteConfig{Path: "festreg.db"},
			Mongo: MongoConfig{
				URI:            "mongodb://127.0.0.1:27017",
				Database:       "festreg",
				ConnectTimeout: 10 * time.Second,
			},
		},
		Notify: NotifyConfig{
			Driver: NotifyLog,
			EmailJS: EmailJSConfig{
				Endpoint: "https://api.emailjs.com/api/v1.0/email/send",
				Origin:   "http://localhost",
			},
		},
		Payment: PaymentConfig{UPILabel: "Celluloid", Timezone: "Asia/Kolkata"},
		Session: SessionConfig{TTL: 2 * time.Hour, CleanupInterval: 10 * time.Minute},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// setDefaults registers every key so that AutomaticEnv can see it.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", d.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.postgres.host", d.Store.Postgres.Host)
	v.SetDefault("store.postgres.port", d.Store.Postgres.Port)
	v.SetDefault("store.postgres.user", d.Store.Postgres.User)
	v.SetDefault("store.postgres.password", d.Store.Postgres.Password)
	v.SetDefault("store.postgres.dbname", d.Store.Postgres.DBName)
	v.SetDefault("store.postgres.sslmode", d.Store.Postgres.SSLMode)
	v.SetDefault("store.postgres.max_conns", d.Store.Postgres.MaxConns)
	v.SetDefault("store.postgres.min_conns", d.Store.Postgres.MinConns)
	v.SetDefault("store.postgres.connect_attempts", d.Store.Postgres.ConnectAttempts)
	v.SetDefault("store.sqlite.path", d.Store.SQLite.Path)
	v.SetDefault("store.mongo.uri", d.Store.Mongo.URI)
	v.SetDefault("store.mongo.database", d.Store.Mongo.Database)
	v.SetDefault("store.mongo.connect_timeout", d.Store.Mongo.ConnectTimeout)

	v.SetDefault("notify.driver", d.Notify.Driver)
	v.SetDefault("notify.timeout", d.Notify.Timeout)
	v.SetDefault("notify.emailjs.endpoint", d.Notify.EmailJS.Endpoint)
	v.SetDefault("notify.emailjs.service_id", d.Notify.EmailJS.ServiceID)
	v.SetDefault("notify.emailjs.template_id", d.Notify.EmailJS.TemplateID)
	v.SetDefault("notify.emailjs.user_id", d.Notify.EmailJS.UserID)
	v.SetDefault("notify.emailjs.origin", d.Notify.EmailJS.Origin)

	v.SetDefault("payment.upi_label", d.Payment.UPILabel)
	v.SetDefault("payment.upi_address", d.Payment.UPIAddress)
	v.SetDefault("payment.timezone", d.Payment.Timezone)
	v.SetDefault("gate.admin", d.Gate.Admin)
	v.SetDefault("gate.registration", d.Gate.Registration)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.cleanup_interval", d.Session.CleanupInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads configuration into a Config. configFile may be empty.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("FESTREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated options and required credentials.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("store.driver %q: must be one of memory, postgres, sqlite, mongo", c.Store.Driver)
	}
	switch c.Notify.Driver {
	case NotifyLog:
	case NotifyEmailJS:
		e := c.Notify.EmailJS
		if e.ServiceID == "" || e.TemplateID == "" || e.UserID == "" {
			return fmt.Errorf("notify.emailjs: service_id, template_id and user_id are required")
		}
	default:
		return fmt.Errorf("notify.driver %q: must be log or emailjs", c.Notify.Driver)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Payment.UPILabel == "" {
		return fmt.Errorf("payment.upi_label is required")
	}
	return nil
}
