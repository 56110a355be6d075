package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Port                             string `mapstructure:"PORT"`
	GinMode                          string `mapstructure:"GIN_MODE"`
	CatalogFile                      string `mapstructure:"CATALOG_FILE"`
	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	ClientURL                        string `mapstructure:"CLIENT_URL"`

	HTTPClientTimeout time.Duration `mapstructure:"HTTP_CLIENT_TIMEOUT"`

	PaymentBaseURL      string        `mapstructure:"PAYMENT_BASE_URL"`
	PaymentAPIKey       string        `mapstructure:"PAYMENT_API_KEY"`
	PaymentPrivateKey   string        `mapstructure:"PAYMENT_PRIVATE_KEY"`
	PaymentMerchantCode string        `mapstructure:"PAYMENT_MERCHANT_CODE"`
	PaymentReturnURL    string        `mapstructure:"PAYMENT_RETURN_URL"`
	PaymentCallbackURL  string        `mapstructure:"PAYMENT_CALLBACK_URL"`
	PaymentExpiry       time.Duration `mapstructure:"PAYMENT_EXPIRY"`

	DiscordWebhookURL string `mapstructure:"DISCORD_WEBHOOK_URL"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	RabbitMQQueue     string `mapstructure:"RABBITMQ_QUEUE"`
	SMTPHost          string `mapstructure:"SMTP_HOST"`
	SMTPPort          int    `mapstructure:"SMTP_PORT"`
	SMTPUser          string `mapstructure:"SMTP_USER"`
	SMTPPass          string `mapstructure:"SMTP_PASS"`
	SMTPSender        string `mapstructure:"SMTP_SENDER"`

	RedisAddress  string        `mapstructure:"REDIS_ADDRESS"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`

	UsageResetSchedule string `mapstructure:"USAGE_RESET_SCHEDULE"`
}

var envKeys = []string{
	"PORT", "GIN_MODE", "CATALOG_FILE",
	"FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_SERVICE_ACCOUNT_JSON_BASE64",
	"CLIENT_URL", "HTTP_CLIENT_TIMEOUT",
	"PAYMENT_BASE_URL", "PAYMENT_API_KEY", "PAYMENT_PRIVATE_KEY", "PAYMENT_MERCHANT_CODE",
	"PAYMENT_RETURN_URL", "PAYMENT_CALLBACK_URL", "PAYMENT_EXPIRY",
	"DISCORD_WEBHOOK_URL", "RABBITMQ_URL", "RABBITMQ_QUEUE",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_SENDER",
	"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "CACHE_TTL",
	"USAGE_RESET_SCHEDULE",
}

// LoadConfig loads configuration from environment variables using Viper.
// When CONFIG_FILE is set, that file is read first and the environment overrides it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("HTTP_CLIENT_TIMEOUT", "30s")
	v.SetDefault("PAYMENT_BASE_URL", "https://tripay.co.id/api-sandbox")
	v.SetDefault("PAYMENT_EXPIRY", "24h")
	v.SetDefault("RABBITMQ_QUEUE", "slowly.events")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("USAGE_RESET_SCHEDULE", "@daily")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("CONFIG_FILE")

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings without which the server cannot start.
// Optional integrations are left empty and simply disabled.
func (c *Config) Validate() error {
	if c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required")
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.HTTPClientTimeout <= 0 {
		return errors.New("HTTP_CLIENT_TIMEOUT must be positive")
	}
	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	return nil
}

// PaymentEnabled reports whether the payment gateway credentials are configured.
func (c *Config) PaymentEnabled() bool {
	return c.PaymentAPIKey != "" && c.PaymentPrivateKey != "" && c.PaymentMerchantCode != ""
}

// IsRelease reports whether gin runs in release mode.
func (c *Config) IsRelease() bool {
	return strings.EqualFold(c.GinMode, "release")
}
