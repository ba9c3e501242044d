// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"course-entitlement/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ConfirmRateLimit caps confirmations per account per minute; needs redis.
	ConfirmRateLimit int `yaml:"confirm_rate_limit"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

type DatabaseConfig struct {
	URL           string `yaml:"url" env:"DATABASE_URL"`
	MaxConns      int32  `yaml:"max_conns"`
	MigrateOnBoot bool   `yaml:"migrate_on_boot" env:"DATABASE_MIGRATE"`
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"REDIS_URL"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer"`
}

type CardConfig struct {
	BaseURL   string `yaml:"base_url"`
	SecretKey string `yaml:"secret_key" env:"CARD_SECRET_KEY"`
}

type InAppConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key" env:"INAPP_API_KEY"`
	WebhookSecret string `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
}

type PaymentConfig struct {
	Card    CardConfig    `yaml:"card"`
	InApp   InAppConfig   `yaml:"in_app"`
	Timeout time.Duration `yaml:"timeout"` // per processor call
	Noop    bool          `yaml:"noop"`    // in-memory processors, dev only
}

type RenewalConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Window   time.Duration `yaml:"window"`  // renew accounts expiring within this window
	Workers  int           `yaml:"workers"` // concurrent charges per run
	Batch    int           `yaml:"batch"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type RetentionConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	PurchaseRetention time.Duration `yaml:"purchase_retention"`
	IntentTTL         time.Duration `yaml:"intent_ttl"`
	CompletedIntents  time.Duration `yaml:"completed_intents"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

type CatalogConfig struct {
	Products []model.Product `yaml:"products"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Payment   PaymentConfig   `yaml:"payment"`
	Renewal   RenewalConfig   `yaml:"renewal"`
	Retention RetentionConfig `yaml:"retention"`
	Security  SecurityConfig  `yaml:"security"`
	Catalog   CatalogConfig   `yaml:"catalog"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, overlays environment variables for secrets
// and deployment-specific values, then applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	cfg.Server.ReadTimeout = orDefault(cfg.Server.ReadTimeout, 15*time.Second)
	cfg.Server.WriteTimeout = orDefault(cfg.Server.WriteTimeout, 30*time.Second)
	cfg.Server.ShutdownTimeout = orDefault(cfg.Server.ShutdownTimeout, 20*time.Second)
	if cfg.Server.ConfirmRateLimit <= 0 {
		cfg.Server.ConfirmRateLimit = 30
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "course-entitlement"
	}

	cfg.Payment.Timeout = orDefault(cfg.Payment.Timeout, 10*time.Second)
	if cfg.Payment.Card.BaseURL == "" {
		cfg.Payment.Card.BaseURL = "https://api.tosspayments.com"
	}

	cfg.Renewal.Interval = orDefault(cfg.Renewal.Interval, time.Hour)
	cfg.Renewal.Window = orDefault(cfg.Renewal.Window, 24*time.Hour)
	cfg.Renewal.LockTTL = orDefault(cfg.Renewal.LockTTL, 30*time.Minute)
	if cfg.Renewal.Workers <= 0 {
		cfg.Renewal.Workers = 4
	}
	if cfg.Renewal.Batch <= 0 {
		cfg.Renewal.Batch = 500
	}

	cfg.Retention.Interval = orDefault(cfg.Retention.Interval, 24*time.Hour)
	cfg.Retention.PurchaseRetention = orDefault(cfg.Retention.PurchaseRetention, 5*365*24*time.Hour)
	cfg.Retention.IntentTTL = orDefault(cfg.Retention.IntentTTL, 24*time.Hour)
	cfg.Retention.CompletedIntents = orDefault(cfg.Retention.CompletedIntents, 30*24*time.Hour)

	if len(cfg.Catalog.Products) == 0 {
		cfg.Catalog.Products = model.DefaultProducts()
	}
}

func (cfg *Config) validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if n := len(cfg.Security.EncryptionKey); n != 16 && n != 24 && n != 32 && !cfg.Runtime.Dev {
		return fmt.Errorf("security.encryption_key must be 16, 24 or 32 bytes; got %d", n)
	}
	if !cfg.Payment.Noop {
		if cfg.Payment.Card.SecretKey == "" {
			return errors.New("payment.card.secret_key is required")
		}
		if cfg.Payment.InApp.BaseURL == "" {
			return errors.New("payment.in_app.base_url is required")
		}
	}
	if cfg.Payment.InApp.WebhookSecret == "" {
		return errors.New("payment.in_app.webhook_secret is required")
	}
	if (cfg.Renewal.Enabled || cfg.Retention.Enabled) && cfg.Redis.URL == "" {
		return errors.New("redis.url is required when background jobs are enabled")
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
