package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/docstore"
	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/internal/report"
	"procodus.dev/weather-db/pkg/logger"
	"procodus.dev/weather-db/pkg/metrics"
)

// InitConfig initializes Viper configuration.
// Values come from flags, WEATHERDB_* environment variables (optionally
// loaded from a .env file), a config.yaml and the defaults below.
func InitConfig(cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/weather-db/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	setDefaults()

	viper.SetEnvPrefix("WEATHERDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("store.driver", docstore.DriverMongo)
	viper.SetDefault("store.mongo.uri", "mongodb://127.0.0.1:27017")
	viper.SetDefault("store.mongo.database", "weather_db")
	viper.SetDefault("store.postgres.host", "localhost")
	viper.SetDefault("store.postgres.port", 5432)
	viper.SetDefault("store.postgres.user", "postgres")
	viper.SetDefault("store.postgres.name", "weather_db")
	viper.SetDefault("store.postgres.sslmode", "disable")

	viper.SetDefault("policy.default.read", access.DefaultReadDevices)
	viper.SetDefault("policy.default.write", access.DefaultWriteDevices)

	viper.SetDefault("report.start", report.DefaultWindow.Start.Format(time.DateOnly))
	viper.SetDefault("report.days", report.DefaultWindow.Days)
	viper.SetDefault("report.scope", string(report.ScopeDaily))
	viper.SetDefault("report.rabbitmq.queue", "daily-reports")
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	cfg := logger.DefaultConfig()
	cfg.Output = os.Stderr
	cfg.Level = logger.ParseLevel(viper.GetString("log.level"))
	return logger.New(cfg)
}

func storeConfig(l *slog.Logger) docstore.Config {
	return docstore.Config{
		Driver: viper.GetString("store.driver"),
		Mongo: &docstore.MongoConfig{
			Logger:        l,
			URI:           viper.GetString("store.mongo.uri"),
			Database:      viper.GetString("store.mongo.database"),
			UniqueIndexes: models.UniqueIndexes(),
		},
		Postgres: &docstore.PostgresConfig{
			Logger:   l,
			Host:     viper.GetString("store.postgres.host"),
			Port:     viper.GetInt("store.postgres.port"),
			User:     viper.GetString("store.postgres.user"),
			Password: viper.GetString("store.postgres.password"),
			DBName:   viper.GetString("store.postgres.name"),
			SSLMode:  viper.GetString("store.postgres.sslmode"),
		},
	}
}

func policyFromConfig() *access.Policy {
	return access.NewPolicy(map[access.Role]access.Rule{
		access.RoleAdmin: {Read: access.AllowAll(), Write: access.AllowAll()},
		access.RoleDefault: {
			Read:  access.AllowOnly(viper.GetStringSlice("policy.default.read")...),
			Write: access.AllowOnly(viper.GetStringSlice("policy.default.write")...),
		},
	})
}

func windowFromConfig() (report.Window, error) {
	start, err := time.Parse(time.DateOnly, viper.GetString("report.start"))
	if err != nil {
		return report.Window{}, fmt.Errorf("invalid report.start: %w", err)
	}
	return report.Window{Start: start, Days: viper.GetInt("report.days")}, nil
}

// callerFromConfig returns the caller named by --role. An unknown role
// still yields a caller so that the policy reports the denial.
func callerFromConfig(l *slog.Logger) access.Caller {
	caller, err := access.NewCaller(viper.GetString("caller.role"))
	if err != nil {
		l.Warn("unrecognized caller role", "error", err)
	}
	return caller
}

// app is what the one-shot commands work with.
type app struct {
	logger *slog.Logger
	store  docstore.Store
	models *models.Models
}

func openApp(ctx context.Context) (*app, error) {
	l := GetLogger()

	store, err := docstore.Open(ctx, storeConfig(l))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	instrumented, err := docstore.NewInstrumentedStore(store, l, metrics.NewStoreMetrics(nil))
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	m, err := models.New(&models.Config{
		Logger:  l,
		Store:   instrumented,
		Policy:  policyFromConfig(),
		Metrics: metrics.NewModelMetrics(nil),
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	return &app{logger: l, store: instrumented, models: m}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}
