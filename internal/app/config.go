package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/dukkanapp/syncengine/internal/database"
)

// Config represents the runtime configuration for the sync daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the local database.
type DatabaseConfig struct {
	Driver   string            `mapstructure:"driver"`
	Path     string            `mapstructure:"path"`
	DSN      string            `mapstructure:"dsn"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Name     string            `mapstructure:"name"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// CacheConfig tunes the in-memory freshness cache.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

// RetryConfig tunes remote-read retries.
type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// RecoveryConfig tunes the recovery controller.
type RecoveryConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// RemoteConfig points at the remote data backend.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig identifies whose data this daemon instance syncs.
type SyncConfig struct {
	UserID string `mapstructure:"user_id"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SYNCENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate reports configuration the daemon cannot start without.
func (c *Config) Validate() error {
	if c.Sync.UserID == "" {
		return errors.New("config: sync.user_id is required")
	}
	if c.Remote.BaseURL == "" {
		return errors.New("config: remote.base_url is required")
	}
	return nil
}

// DatabaseConfig converts to the database package's connection settings.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:   c.Database.Driver,
		Path:     c.Database.Path,
		DSN:      c.Database.DSN,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Name:     c.Database.Name,
		User:     c.Database.User,
		Password: c.Database.Password,
		Options:  c.Database.Options,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8600)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/syncengine.sqlite")

	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.sweep_schedule", "@every 1m")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.backoff_base", "1s")

	v.SetDefault("recovery.settle_delay", "1s")

	// Empty defaults keep these keys visible to AutomaticEnv.
	v.SetDefault("database.dsn", "")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("sync.user_id", "")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
