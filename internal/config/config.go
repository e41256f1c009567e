package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // collector.timezone must resolve on hosts without zoneinfo

	"github.com/spf13/viper"
)

// Config holds all AI Spend Guardian configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Cron      CronConfig      `mapstructure:"cron"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Collector CollectorConfig `mapstructure:"collector"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig defines the HTTP server for cron triggers and the API.
type ServerConfig struct {
	Listen        string        `mapstructure:"listen"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ValidateRPS   float64       `mapstructure:"validate_rps"`
	ValidateBurst int           `mapstructure:"validate_burst"`
}

// CronConfig defines the shared secret cron callers present as a bearer token.
type CronConfig struct {
	Secret string `mapstructure:"secret"`
}

// ProviderConfig defines the upstream cost API client.
type ProviderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PageLimit     int           `mapstructure:"page_limit"`
	ValidationTTL time.Duration `mapstructure:"validation_ttl"`
}

// CollectorConfig tunes daily cost collection.
type CollectorConfig struct {
	MaxPages   int           `mapstructure:"max_pages"`
	BatchSize  int           `mapstructure:"batch_size"`
	PageDelay  time.Duration `mapstructure:"page_delay"`
	Timezone   string        `mapstructure:"timezone"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

// AlertsConfig defines threshold evaluation and notification integrations.
type AlertsConfig struct {
	Throttle   time.Duration `mapstructure:"throttle"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	Slack      SlackConfig   `mapstructure:"slack"`
	Webhook    WebhookConfig `mapstructure:"webhook"`
	Email      EmailConfig   `mapstructure:"email"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// EmailConfig defines SMTP delivery for alerts and weekly reports.
type EmailConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	To       []string      `mapstructure:"to"`
}

// PricingConfig defines pricing data settings.
type PricingConfig struct {
	Dir string `mapstructure:"dir"`
}

// SecretsConfig holds the master secret admin keys are encrypted with.
type SecretsConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the collector timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Collector.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Collector.Timezone)
	if err != nil {
		return nil, fmt.Errorf("collector timezone %q: %w", c.Collector.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".asg"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".asg", "guardian.db"))
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.validate_rps", 2.0)
	v.SetDefault("server.validate_burst", 5)
	v.SetDefault("cron.secret", "")
	v.SetDefault("provider.base_url", "https://api.openai.com")
	v.SetDefault("provider.timeout", "5s")
	v.SetDefault("provider.page_limit", 180)
	v.SetDefault("provider.validation_ttl", "5m")
	v.SetDefault("collector.max_pages", 100)
	v.SetDefault("collector.batch_size", 1000)
	v.SetDefault("collector.page_delay", "1s")
	v.SetDefault("collector.timezone", "UTC")
	v.SetDefault("collector.max_retries", 3)
	v.SetDefault("collector.base_delay", "1s")
	v.SetDefault("alerts.throttle", "1h")
	v.SetDefault("alerts.max_retries", 3)
	v.SetDefault("alerts.base_delay", "1s")
	v.SetDefault("alerts.slack.enabled", false)
	v.SetDefault("alerts.slack.webhook_url", "")
	v.SetDefault("alerts.slack.channel", "#ai-spend")
	v.SetDefault("alerts.webhook.enabled", false)
	v.SetDefault("alerts.webhook.url", "")
	v.SetDefault("alerts.webhook.secret", "")
	v.SetDefault("alerts.email.enabled", false)
	v.SetDefault("alerts.email.host", "localhost")
	v.SetDefault("alerts.email.port", 587)
	v.SetDefault("alerts.email.username", "")
	v.SetDefault("alerts.email.password", "")
	v.SetDefault("alerts.email.from", "guardian@localhost")
	v.SetDefault("alerts.email.use_tls", false)
	v.SetDefault("alerts.email.timeout", "30s")
	v.SetDefault("pricing.dir", "pricing/")
	v.SetDefault("secrets.encryption_key", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("ASG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
