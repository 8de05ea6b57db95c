// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// GAMECRAWLER_SITE_BASE_URL or GAMECRAWLER_NOTIFY_TELEGRAM_BOT_TOKEN.
const EnvPrefix = "GAMECRAWLER"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Archive drivers.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Site      SiteConfig      `mapstructure:"site"`
	Poller    PollerConfig    `mapstructure:"poller"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr is host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SiteConfig points at the polled site.
type SiteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	AcceptLanguage string `mapstructure:"accept_language"`
}

// PollerConfig controls the supervisor loop.
type PollerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	Games             []string      `mapstructure:"games"`
	AnnounceLifecycle bool          `mapstructure:"announce_lifecycle"`
	// StrategyTimeout bounds each strategy attempt that sets no timeout of its own.
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout"`
}

// HTTPConfig configures the plain HTTP strategy.
type HTTPConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// BrowserConfig configures the scripted and stealth browser strategies.
type BrowserConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	StealthEnabled    bool          `mapstructure:"stealth_enabled"`
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
}

// StorageConfig selects the result store.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig is the file-backed store.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls the pgx pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig selects where raw snapshots of new results go.
type ArchiveConfig struct {
	Driver  string        `mapstructure:"driver"`
	BaseDir string        `mapstructure:"base_dir"`
	Bucket  string        `mapstructure:"bucket"`
	Prefix  string        `mapstructure:"prefix"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotifyConfig holds the per-channel settings. A channel with missing
// required fields is skipped, not rejected.
type NotifyConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Live     LiveConfig     `mapstructure:"live"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
}

// DeliveryConfig optionally moves result announcements onto background
// workers. With more than one worker, deliveries of different results may
// overlap.
//
// Synchronous delivery (the default) tries each channel at most once per
// event. Async delivery relaxes that: a failed channel is retried up to
// MaxAttempts times, so a receiver may see the same result more than once
// if a send failed after the message went out. Set MaxAttempts to 1 to keep
// single-attempt semantics.
type DeliveryConfig struct {
	Async        bool          `mapstructure:"async"`
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// TelegramConfig is the Bot API target.
type TelegramConfig struct {
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	APIBaseURL string `mapstructure:"api_base_url"`
}

// EmailConfig is the SMTP relay.
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	StartTLS bool     `mapstructure:"starttls"`
}

// WebhookConfig is the outbound JSON hook.
type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// PubSubConfig holds the publish-subscribe target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LiveConfig toggles websocket push to API clients.
type LiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("site.base_url", "https://68gbvn25.biz/")
	v.SetDefault("site.accept_language", "vi-VN,vi;q=0.9,en;q=0.8")
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.games", []string{})
	v.SetDefault("poller.announce_lifecycle", true)
	v.SetDefault("poller.strategy_timeout", "30s")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.requests_per_second", 2)
	v.SetDefault("http.burst", 1)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.stealth_enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.settle_delay", "10s")
	v.SetDefault("browser.poll_interval", "500ms")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.sqlite.path", "game_data.db")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "game_results")
	v.SetDefault("archive.driver", ArchiveNone)
	v.SetDefault("archive.base_dir", "data/snapshots")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("archive.timeout", "10s")
	v.SetDefault("notify.timeout", "30s")
	// Keys need a default for AutomaticEnv to reach them through Unmarshal.
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("notify.email.host", "")
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.username", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.to", []string{})
	v.SetDefault("notify.email.starttls", true)
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.secret", "")
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")
	v.SetDefault("notify.live.enabled", true)
	v.SetDefault("notify.delivery.async", false)
	v.SetDefault("notify.delivery.workers", 1)
	v.SetDefault("notify.delivery.queue_size", 64)
	v.SetDefault("notify.delivery.max_attempts", 3)
	v.SetDefault("notify.delivery.retry_backoff", "2s")
	v.SetDefault("notify.delivery.drain_timeout", "30s")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "gameresult-crawler")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// normalize trims list entries that env overrides deliver as one
// comma-separated string.
func (c *Config) normalize() {
	c.Poller.Games = splitList(c.Poller.Games)
	c.Notify.Email.To = splitList(c.Notify.Email.To)
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Archive.Driver = strings.ToLower(strings.TrimSpace(c.Archive.Driver))
	if c.Archive.Driver == "" {
		c.Archive.Driver = ArchiveNone
	}
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// GameTypes parses Poller.Games. Empty means the whole catalogue.
func (c Config) GameTypes() ([]game.Type, error) {
	out := make([]game.Type, 0, len(c.Poller.Games))
	for _, raw := range c.Poller.Games {
		gt, err := game.ParseType(raw)
		if err != nil {
			return nil, fmt.Errorf("poller.games: %w", err)
		}
		out = append(out, gt)
	}
	return out, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return errors.New("server.api_prefix must start with /")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute URL, got %q", c.Site.BaseURL)
	}
	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	if _, err := c.GameTypes(); err != nil {
		return err
	}
	if !c.HTTP.Enabled && !c.Browser.Enabled {
		return errors.New("at least one of http.enabled or browser.enabled must be true")
	}
	if c.HTTP.Enabled && c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return errors.New("http.requests_per_second must be >= 0")
	}
	if c.Browser.Enabled && c.Browser.NavigationTimeout <= 0 {
		return errors.New("browser.navigation_timeout must be > 0 when the browser is enabled")
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for the sqlite driver")
		}
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of memory, sqlite, postgres", c.Storage.Driver)
	}
	switch c.Archive.Driver {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return errors.New("archive.base_dir is required for the local driver")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("archive.driver %q is not one of none, memory, local, gcs", c.Archive.Driver)
	}
	if c.Notify.Timeout <= 0 {
		return errors.New("notify.timeout must be > 0")
	}
	if d := c.Notify.Delivery; d.Async && (d.Workers <= 0 || d.QueueSize <= 0 || d.MaxAttempts <= 0) {
		return errors.New("notify.delivery workers, queue_size and max_attempts must be > 0")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}
