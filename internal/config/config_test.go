package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Empty(t, cfg.Cron.Secret)
	assert.Equal(t, "https://api.openai.com", cfg.Provider.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Provider.ValidationTTL)
	assert.Equal(t, 100, cfg.Collector.MaxPages)
	assert.Equal(t, 1000, cfg.Collector.BatchSize)
	assert.Equal(t, time.Second, cfg.Collector.PageDelay)
	assert.Equal(t, 3, cfg.Collector.MaxRetries)
	assert.Equal(t, time.Hour, cfg.Alerts.Throttle)
	assert.Equal(t, "#ai-spend", cfg.Alerts.Slack.Channel)
	assert.Equal(t, 587, cfg.Alerts.Email.Port)
	assert.Equal(t, 30*time.Second, cfg.Alerts.Email.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "pricing/", cfg.Pricing.Dir)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
storage:
  path: /tmp/test.db
server:
  listen: ":9090"
cron:
  secret: file-secret
collector:
  max_pages: 10
  page_delay: 250ms
  timezone: Asia/Tokyo
alerts:
  email:
    enabled: true
    to: [ops@example.com, finance@example.com]
logging:
  level: debug
`)
	err := os.WriteFile(cfgPath, data, 0o644)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Storage.Path)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "file-secret", cfg.Cron.Secret)
	assert.Equal(t, 10, cfg.Collector.MaxPages)
	assert.Equal(t, 250*time.Millisecond, cfg.Collector.PageDelay)
	assert.True(t, cfg.Alerts.Email.Enabled)
	assert.Equal(t, []string{"ops@example.com", "finance@example.com"}, cfg.Alerts.Email.To)
	assert.Equal(t, "debug", cfg.Logging.Level)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ASG_LOGGING_LEVEL", "error")
	t.Setenv("ASG_SERVER_LISTEN", ":7070")
	t.Setenv("ASG_CRON_SECRET", "env-secret")
	t.Setenv("ASG_SECRETS_ENCRYPTION_KEY", "master")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "env-secret", cfg.Cron.Secret)
	assert.Equal(t, "master", cfg.Secrets.EncryptionKey)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	err := os.WriteFile(cfgPath, []byte("invalid: [yaml"), 0o644)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	assert.Error(t, err)
}

func TestLocation_Invalid(t *testing.T) {
	cfg := &config.Config{Collector: config.CollectorConfig{Timezone: "Mars/Olympus"}}
	_, err := cfg.Location()
	assert.Error(t, err)
}
