// Package config provides configuration management for the price monitor.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "memwatch/internal/errors"
)

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Delta strategies.
const (
	DeltaSnapshot = "snapshot"
	DeltaHistory  = "history"
)

// Notification levels.
const (
	LevelAll         = "all"
	LevelReportsOnly = "reports_only"
	LevelErrorsOnly  = "errors_only"
)

// DefaultPageURL is the CFM DDR channel-market price page.
const DefaultPageURL = "https://www.chinaflashmarket.com/pricecenter/ddrchannel"

// DefaultCategory is the category name reported for DefaultPageURL.
const DefaultCategory = "DDR Memory (Channel Market)"

// Config holds all application configuration.
type Config struct {
	Data          DataConfig         `mapstructure:"data"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Tracker       TrackerConfig      `mapstructure:"tracker"`
	Source        SourceConfig       `mapstructure:"source"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	UI            UIConfig           `mapstructure:"ui"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// DataConfig holds data directory configuration.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// StorageConfig selects the history store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // json, sqlite
}

// TrackerConfig holds price tracker configuration.
type TrackerConfig struct {
	DeltaStrategy string `mapstructure:"delta_strategy"` // snapshot, history
}

// SourceConfig holds price source configuration.
type SourceConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Fallback    bool          `mapstructure:"fallback"`
	Concurrency int           `mapstructure:"concurrency"`
	UserAgents  []string      `mapstructure:"user_agents"`
	Pages       []PageConfig  `mapstructure:"pages"`
}

// PageConfig names one price page and the category it feeds.
type PageConfig struct {
	Category string `mapstructure:"category"`
	URL      string `mapstructure:"url"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Level    string         `mapstructure:"level"` // all, reports_only, errors_only
	Email    EmailConfig    `mapstructure:"email"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // empty disables export
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool `mapstructure:"color_enabled"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/memwatch"
	}
	return filepath.Join(home, ".config", "memwatch")
}

// Default returns the built-in configuration for configDir.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	cfg.Dir = configDir
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	v := viper.New()
	setDefaults(v, configDir)
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// Best effort; the defaults are usable without a file.
		_ = createTemplateConfig(configDir)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}
	cfg.Dir = configDir

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("data.dir", filepath.Join(configDir, "data"))
	v.SetDefault("storage.backend", BackendJSON)
	v.SetDefault("tracker.delta_strategy", DeltaSnapshot)

	v.SetDefault("source.timeout", 10*time.Second)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.fallback", true)
	v.SetDefault("source.concurrency", 2)
	v.SetDefault("source.pages", []map[string]interface{}{
		{"category": DefaultCategory, "url": DefaultPageURL},
	})

	v.SetDefault("notifications.level", LevelAll)
	v.SetDefault("notifications.email.enabled", true)
	v.SetDefault("notifications.email.smtp_host", "smtp.qq.com")
	v.SetDefault("notifications.email.smtp_port", 465)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.max_size", 20)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 90)

	v.SetDefault("ui.color_enabled", true)
}

// loadDotEnv loads .env files from the working directory and the config
// directory. Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	// SMTP settings
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		cfg.Notifications.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Notifications.Email.SMTPPort = port
		}
	}
	if v := os.Getenv("SMTP_EMAIL"); v != "" {
		cfg.Notifications.Email.Username = v
		if cfg.Notifications.Email.From == "" {
			cfg.Notifications.Email.From = v
		}
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("RECIPIENT_EMAIL"); v != "" {
		cfg.Notifications.Email.To = v
	}

	// Storage and tracking
	if v := os.Getenv("MEMWATCH_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("MEMWATCH_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("MEMWATCH_DELTA_STRATEGY"); v != "" {
		cfg.Tracker.DeltaStrategy = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return apperrors.NewValidationError("storage.backend", c.Storage.Backend, "must be 'json' or 'sqlite'")
	}

	switch c.Tracker.DeltaStrategy {
	case DeltaSnapshot, DeltaHistory:
	default:
		return apperrors.NewValidationError("tracker.delta_strategy", c.Tracker.DeltaStrategy, "must be 'snapshot' or 'history'")
	}

	switch c.Notifications.Level {
	case LevelAll, LevelReportsOnly, LevelErrorsOnly:
	default:
		return apperrors.NewValidationError("notifications.level", c.Notifications.Level, "must be all, reports_only or errors_only")
	}

	if p := c.Notifications.Email.SMTPPort; p <= 0 || p > 65535 {
		return apperrors.NewValidationError("notifications.email.smtp_port", p, "must be between 1 and 65535")
	}

	if c.Source.MaxRetries < 1 {
		return apperrors.NewValidationError("source.max_retries", c.Source.MaxRetries, "must be at least 1")
	}
	if c.Source.Timeout <= 0 {
		return apperrors.NewValidationError("source.timeout", c.Source.Timeout, "must be positive")
	}
	if len(c.Source.Pages) == 0 {
		return apperrors.NewValidationError("source.pages", 0, "at least one page is required")
	}
	for i, p := range c.Source.Pages {
		if p.Category == "" {
			return apperrors.NewValidationError(fmt.Sprintf("source.pages[%d].category", i), p.Category, "must not be empty")
		}
		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.NewValidationError(fmt.Sprintf("source.pages[%d].url", i), p.URL, "must be an http(s) URL")
		}
	}

	if c.Data.Dir == "" {
		return apperrors.NewValidationError("data.dir", c.Data.Dir, "must not be empty")
	}

	return nil
}

// HistoryPath returns the location of the persisted price history for the
// configured backend.
func (c *Config) HistoryPath() string {
	if c.Storage.Backend == BackendSQLite {
		return filepath.Join(c.Data.Dir, "prices.db")
	}
	return filepath.Join(c.Data.Dir, "prices.json")
}

// LockPath returns the run lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Data.Dir, "memwatch.lock")
}

// LogPath returns the rotating log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Data.Dir, "logs", "memwatch.log")
}
