package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Alpaca ──
	setStr(&cfg.Alpaca.ApiKey, "PREDBOT_ALPACA_API_KEY")
	setStr(&cfg.Alpaca.ApiSecret, "PREDBOT_ALPACA_API_SECRET")
	setStr(&cfg.Alpaca.TradeURL, "PREDBOT_ALPACA_TRADE_URL")
	setStr(&cfg.Alpaca.DataURL, "PREDBOT_ALPACA_DATA_URL")
	setBool(&cfg.Alpaca.Paper, "PREDBOT_ALPACA_PAPER")

	// ── Finnhub ──
	setStr(&cfg.Finnhub.ApiKey, "PREDBOT_FINNHUB_API_KEY")
	setStr(&cfg.Finnhub.BaseURL, "PREDBOT_FINNHUB_BASE_URL")
	setStr(&cfg.Finnhub.WsURL, "PREDBOT_FINNHUB_WS_URL")
	setBool(&cfg.Finnhub.StreamEnabled, "PREDBOT_FINNHUB_STREAM_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PREDBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PREDBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDBOT_S3_FORCE_PATH_STYLE")

	// ── Bot ──
	setBool(&cfg.Bot.Enabled, "PREDBOT_BOT_ENABLED")
	setFloat64(&cfg.Bot.Aggressiveness, "PREDBOT_BOT_AGGRESSIVENESS")
	setFloat64(&cfg.Bot.MaxPositionSize, "PREDBOT_BOT_MAX_POSITION_SIZE")
	setInt(&cfg.Bot.MaxHoldingDays, "PREDBOT_BOT_MAX_HOLDING_DAYS")
	setFloat64(&cfg.Bot.MinConfidence, "PREDBOT_BOT_MIN_CONFIDENCE")
	setFloat64(&cfg.Bot.StopLoss, "PREDBOT_BOT_STOP_LOSS")
	setFloat64(&cfg.Bot.TakeProfit, "PREDBOT_BOT_TAKE_PROFIT")
	setStr(&cfg.Bot.TradeFrequency, "PREDBOT_BOT_TRADE_FREQUENCY")
	setStringSlice(&cfg.Bot.AllowedSymbols, "PREDBOT_BOT_ALLOWED_SYMBOLS")

	// ── Fetch ──
	setDuration(&cfg.Fetch.Interval, "PREDBOT_FETCH_INTERVAL")
	setStr(&cfg.Fetch.CandleResolution, "PREDBOT_FETCH_CANDLE_RESOLUTION")
	setInt(&cfg.Fetch.CandleCount, "PREDBOT_FETCH_CANDLE_COUNT")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "PREDBOT_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDBOT_MODE")
	setStr(&cfg.LogLevel, "PREDBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
