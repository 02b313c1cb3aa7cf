// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/adstack/leadsync/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Graph   GraphConfig   `yaml:"graph" mapstructure:"graph"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Refresh RefreshConfig `yaml:"refresh" mapstructure:"refresh"`
	Webhook WebhookConfig `yaml:"webhook" mapstructure:"webhook"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// GraphConfig holds Graph API app credentials and client tuning.
type GraphConfig struct {
	AppID       string  `yaml:"app_id" mapstructure:"app_id"`
	AppSecret   string  `yaml:"app_secret" mapstructure:"app_secret"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IngestConfig configures the lead ingestion job.
type IngestConfig struct {
	// Schedule is a cron expression; the default polls every minute.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
	// FreshFormMetadata disables the per-run form metadata cache and
	// refetches name/questions for every unseen lead.
	FreshFormMetadata bool `yaml:"fresh_form_metadata" mapstructure:"fresh_form_metadata"`
}

// RefreshConfig configures the credential refresh job.
type RefreshConfig struct {
	// Schedule is a cron expression; the default fires daily at 02:00.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
	// ThresholdDays gates the token exchange on remaining lifetime. Zero
	// refreshes unconditionally on every run.
	ThresholdDays int `yaml:"threshold_days" mapstructure:"threshold_days"`
}

// WebhookConfig configures the inbound leadgen webhook endpoint.
type WebhookConfig struct {
	VerifyToken string `yaml:"verify_token" mapstructure:"verify_token"`
}

// ServerConfig configures the webhook/ops HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and environment
// variables prefixed LEADSYNC_.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Empty defaults register the env-only keys with viper so
	// AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("graph.app_id", "")
	v.SetDefault("graph.app_secret", "")
	v.SetDefault("webhook.verify_token", "")
	v.SetDefault("graph.base_url", "https://graph.facebook.com/v18.0")
	v.SetDefault("graph.rate_limit", 10.0)
	v.SetDefault("graph.timeout_secs", 30)
	v.SetDefault("ingest.schedule", "* * * * *")
	v.SetDefault("ingest.fresh_form_metadata", false)
	v.SetDefault("refresh.schedule", "0 2 * * *")
	v.SetDefault("refresh.threshold_days", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
