// Package config loads runtime configuration from an optional YAML file, a
// local .env file, and COLLECTCORE_* environment variables. Environment
// variables win over the file, which wins over defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the root configuration for collectcore binaries.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Attach  AttachConfig  `mapstructure:"attach"`
	Reports ReportsConfig `mapstructure:"reports"`
	Log     LogConfig     `mapstructure:"log"`
}

// StorageConfig selects and parameterizes the persistent store backend.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// AttachConfig selects and parameterizes the attachment object store.
type AttachConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config holds the S3-compatible attachment backend settings.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// ReportsConfig tunes the completion-report export worker.
type ReportsConfig struct {
	QueueSize int      `mapstructure:"queue_size"`
	Formats   []string `mapstructure:"formats"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. When path is empty it looks for config.yaml in
// ./config and the working directory; a missing file is not an error. A .env
// file in the working directory is loaded first so the env layer sees it.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "./collectcore.db")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("attach.driver", "fs")
	v.SetDefault("attach.fs_root", "./attachments")
	v.SetDefault("attach.s3.bucket", "")
	v.SetDefault("attach.s3.region", "")
	v.SetDefault("attach.s3.endpoint", "")
	v.SetDefault("attach.s3.path_style", false)

	v.SetDefault("reports.queue_size", 32)
	v.SetDefault("reports.formats", []string{"json", "csv"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("COLLECTCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field consistency of the loaded configuration.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: storage.postgres_dsn required for postgres driver")
	}
	switch c.Attach.Driver {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("config: unknown attachment driver %q", c.Attach.Driver)
	}
	if c.Attach.Driver == "s3" && c.Attach.S3.Bucket == "" {
		return fmt.Errorf("config: attach.s3.bucket required for s3 driver")
	}
	if c.Reports.QueueSize < 1 {
		return fmt.Errorf("config: reports.queue_size must be positive")
	}
	for _, format := range c.Reports.Formats {
		if format != "json" && format != "csv" {
			return fmt.Errorf("config: unsupported report format %q", format)
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("config: log format must be json or console")
	}
	return nil
}

// NewLogger builds a zap logger per the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	zcfg := zap.NewProductionConfig()
	if c.Log.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// Environ projects the configuration onto the COLLECTCORE_* keys the driver
// factories read, for wiring them without threading the struct through.
func (c *Config) Environ() map[string]string {
	env := map[string]string{
		"COLLECTCORE_STORAGE_DRIVER": c.Storage.Driver,
		"COLLECTCORE_SQLITE_PATH":    c.Storage.SQLitePath,
		"COLLECTCORE_POSTGRES_DSN":   c.Storage.PostgresDSN,
		"COLLECTCORE_ATTACH_DRIVER":  c.Attach.Driver,
		"COLLECTCORE_ATTACH_FS_ROOT": c.Attach.FSRoot,
	}
	if c.Attach.Driver == "s3" {
		env["COLLECTCORE_ATTACH_S3_BUCKET"] = c.Attach.S3.Bucket
		env["COLLECTCORE_ATTACH_S3_REGION"] = c.Attach.S3.Region
		env["COLLECTCORE_ATTACH_S3_ENDPOINT"] = c.Attach.S3.Endpoint
		if c.Attach.S3.PathStyle {
			env["COLLECTCORE_ATTACH_S3_PATH_STYLE"] = "true"
		}
	}
	return env
}
