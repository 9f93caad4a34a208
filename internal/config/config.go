// Package config defines the top-level configuration for the prediction
// trading bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jalverson/predbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PREDBOT_* environment
// variables.
type Config struct {
	Alpaca   AlpacaConfig   `toml:"alpaca"`
	Finnhub  FinnhubConfig  `toml:"finnhub"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Bot      BotConfig      `toml:"bot"`
	Fetch    FetchConfig    `toml:"fetch"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AlpacaConfig holds brokerage API credentials and endpoints.
type AlpacaConfig struct {
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	TradeURL  string `toml:"trade_url"`
	DataURL   string `toml:"data_url"`
	// Paper forces the paper endpoint even when trade_url points at live.
	Paper bool `toml:"paper"`
}

// FinnhubConfig holds market data API credentials and endpoints.
type FinnhubConfig struct {
	ApiKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	WsURL   string `toml:"ws_url"`
	// StreamEnabled turns on the real-time trade WebSocket feed.
	StreamEnabled bool `toml:"stream_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// BotConfig holds the default risk limits applied when the shared cache has
// no bot_config yet. Once the dashboard writes the key, the cached snapshot
// wins; these values only seed the first run.
type BotConfig struct {
	Enabled         bool     `toml:"enabled"`
	Aggressiveness  float64  `toml:"aggressiveness"`
	MaxPositionSize float64  `toml:"max_position_size"`
	MaxHoldingDays  int      `toml:"max_holding_days"`
	MinConfidence   float64  `toml:"min_confidence"`
	StopLoss        float64  `toml:"stop_loss"`
	TakeProfit      float64  `toml:"take_profit"`
	TradeFrequency  string   `toml:"trade_frequency"`
	AllowedSymbols  []string `toml:"allowed_symbols"`
}

// ToRisk maps the TOML bot section onto the domain risk config.
func (b BotConfig) ToRisk() domain.RiskConfig {
	return domain.RiskConfig{
		Enabled:             b.Enabled,
		Aggressiveness:      b.Aggressiveness,
		MaxPositionFraction: b.MaxPositionSize,
		MaxHoldingDays:      b.MaxHoldingDays,
		MinConfidence:       b.MinConfidence,
		StopLoss:            b.StopLoss,
		TakeProfit:          b.TakeProfit,
		TradeFrequency:      b.TradeFrequency,
		AllowedSymbols:      b.AllowedSymbols,
	}
}

// FetchConfig controls the REST market data refresh loop.
type FetchConfig struct {
	Interval duration `toml:"interval"`
	// CandleResolution is the bar size in minutes ("1", "5", "15").
	CandleResolution string `toml:"candle_resolution"`
	CandleCount      int    `toml:"candle_count"`
}

// ArchiveConfig controls cold-storage archival of aged-out history.
type ArchiveConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML files can use strings like "5m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	risk := domain.DefaultRiskConfig()
	return Config{
		Alpaca: AlpacaConfig{
			TradeURL: "https://paper-api.alpaca.markets",
			DataURL:  "https://data.alpaca.markets",
			Paper:    true,
		},
		Finnhub: FinnhubConfig{
			BaseURL:       "https://finnhub.io/api/v1",
			WsURL:         "wss://ws.finnhub.io",
			StreamEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Bot: BotConfig{
			Enabled:         risk.Enabled,
			Aggressiveness:  risk.Aggressiveness,
			MaxPositionSize: risk.MaxPositionFraction,
			MaxHoldingDays:  risk.MaxHoldingDays,
			MinConfidence:   risk.MinConfidence,
			StopLoss:        risk.StopLoss,
			TakeProfit:      risk.TakeProfit,
			TradeFrequency:  risk.TradeFrequency,
			AllowedSymbols:  risk.AllowedSymbols,
		},
		Fetch: FetchConfig{
			Interval:         duration{time.Minute},
			CandleResolution: "5",
			CandleCount:      288,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "forced_exit", "order_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"fetch":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, fetch, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Alpaca credentials are only needed when the engine trades.
	needsBroker := c.Mode == "trade" || c.Mode == "full"
	if needsBroker {
		if c.Alpaca.ApiKey == "" || c.Alpaca.ApiSecret == "" {
			errs = append(errs, "alpaca: api_key and api_secret are required for mode "+c.Mode)
		}
	}

	needsData := c.Mode == "fetch" || c.Mode == "full"
	if needsData && c.Finnhub.ApiKey == "" {
		errs = append(errs, "finnhub: api_key is required for mode "+c.Mode)
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}
	if c.Mode == "archive" && !c.S3.Enabled {
		errs = append(errs, "s3: must be enabled for archive mode")
	}

	if err := c.Bot.ToRisk().Validate(); err != nil {
		errs = append(errs, "bot: "+err.Error())
	}
	if len(c.Bot.AllowedSymbols) == 0 {
		errs = append(errs, "bot: allowed_symbols must not be empty")
	}

	if c.Fetch.Interval.Duration <= 0 {
		errs = append(errs, "fetch: interval must be positive")
	}
	if c.Fetch.CandleCount < 1 {
		errs = append(errs, "fetch: candle_count must be >= 1")
	}

	if c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
