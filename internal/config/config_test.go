package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "memwatch/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SMTP_SERVER", "SMTP_PORT", "SMTP_EMAIL", "SMTP_PASSWORD", "RECIPIENT_EMAIL",
		"MEMWATCH_DATA_DIR", "MEMWATCH_STORAGE_BACKEND", "MEMWATCH_DELTA_STRATEGY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadCreatesTemplateAndUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, DeltaSnapshot, cfg.Tracker.DeltaStrategy)
	assert.Equal(t, 3, cfg.Source.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 465, cfg.Notifications.Email.SMTPPort)
	require.Len(t, cfg.Source.Pages, 1)
	assert.Equal(t, DefaultPageURL, cfg.Source.Pages[0].URL)
	assert.Equal(t, filepath.Join(dir, "data", "prices.json"), cfg.HistoryPath())
}

func TestLoadTemplateRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, createTemplateConfig(dir))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "smtp.qq.com", cfg.Notifications.Email.SMTPHost)
	assert.Equal(t, DefaultCategory, cfg.Source.Pages[0].Category)
}

func TestLoadFileValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `
[storage]
backend = "sqlite"

[tracker]
delta_strategy = "history"

[source]
timeout = "3s"
max_retries = 5

[[source.pages]]
category = "SSD"
url = "https://example.com/ssd"

[[source.pages]]
category = "DDR"
url = "https://example.com/ddr"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, DeltaHistory, cfg.Tracker.DeltaStrategy)
	assert.Equal(t, 3*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 5, cfg.Source.MaxRetries)
	require.Len(t, cfg.Source.Pages, 2)
	assert.Equal(t, "SSD", cfg.Source.Pages[0].Category)
	assert.Equal(t, "DDR", cfg.Source.Pages[1].Category)
	assert.Equal(t, filepath.Join(dir, "data", "prices.db"), cfg.HistoryPath())
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("SMTP_SERVER", "smtp.example.com")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("SMTP_EMAIL", "bot@example.com")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("RECIPIENT_EMAIL", "me@example.com")
	t.Setenv("MEMWATCH_DATA_DIR", filepath.Join(dir, "elsewhere"))

	cfg, err := Load(dir)
	require.NoError(t, err)

	email := cfg.Notifications.Email
	assert.Equal(t, "smtp.example.com", email.SMTPHost)
	assert.Equal(t, 587, email.SMTPPort)
	assert.Equal(t, "bot@example.com", email.Username)
	assert.Equal(t, "bot@example.com", email.From)
	assert.Equal(t, "secret", email.Password)
	assert.Equal(t, "me@example.com", email.To)
	assert.Equal(t, filepath.Join(dir, "elsewhere"), cfg.Data.Dir)
}

func TestDotEnvLoaded(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("RECIPIENT_EMAIL")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RECIPIENT_EMAIL=dotenv@example.com\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("RECIPIENT_EMAIL") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dotenv@example.com", cfg.Notifications.Email.To)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"bad strategy", func(c *Config) { c.Tracker.DeltaStrategy = "guess" }, "tracker.delta_strategy"},
		{"bad level", func(c *Config) { c.Notifications.Level = "loud" }, "notifications.level"},
		{"bad port", func(c *Config) { c.Notifications.Email.SMTPPort = 0 }, "notifications.email.smtp_port"},
		{"no retries", func(c *Config) { c.Source.MaxRetries = 0 }, "source.max_retries"},
		{"no pages", func(c *Config) { c.Source.Pages = nil }, "source.pages"},
		{"bad url", func(c *Config) { c.Source.Pages[0].URL = "ftp://x" }, "source.pages[0].url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)

			var ve *apperrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
