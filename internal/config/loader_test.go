package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "fetch"
log_level = "debug"

[finnhub]
api_key = "fh-test"

[bot]
allowed_symbols = ["AAPL", "MSFT"]
trade_frequency = "1min"

[fetch]
interval = "30s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fetch", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "fh-test", cfg.Finnhub.ApiKey)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Bot.AllowedSymbols)
	assert.Equal(t, "1min", cfg.Bot.TradeFrequency)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Interval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0.5, cfg.Bot.Aggressiveness)
	assert.True(t, cfg.Alpaca.Paper)
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("PREDBOT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PREDBOT_ALPACA_API_KEY", "env-key")
	t.Setenv("PREDBOT_BOT_ALLOWED_SYMBOLS", "NVDA, TSLA")
	t.Setenv("PREDBOT_BOT_AGGRESSIVENESS", "0.8")

	path := writeConfig(t, `
[redis]
addr = "file.redis:6379"

[alpaca]
api_key = "file-key"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "env-key", cfg.Alpaca.ApiKey)
	assert.Equal(t, []string{"NVDA", "TSLA"}, cfg.Bot.AllowedSymbols)
	assert.Equal(t, 0.8, cfg.Bot.Aggressiveness)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "paper" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"missing broker creds in trade mode", func(c *Config) {
			c.Mode = "trade"
			c.Alpaca.ApiKey = ""
		}},
		{"empty symbols", func(c *Config) { c.Bot.AllowedSymbols = nil }},
		{"stop loss out of range", func(c *Config) { c.Bot.StopLoss = 1.5 }},
		{"archive mode without s3", func(c *Config) {
			c.Mode = "archive"
			c.S3.Enabled = false
		}},
		{"zero fetch interval", func(c *Config) { c.Fetch.Interval.Duration = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Mode = "fetch"
			cfg.Finnhub.ApiKey = "fh"
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsDefaultsWithCreds(t *testing.T) {
	cfg := Defaults()
	cfg.Alpaca.ApiKey = "key"
	cfg.Alpaca.ApiSecret = "secret"
	cfg.Finnhub.ApiKey = "fh"
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Alpaca.ApiKey = "key"
	cfg.Alpaca.ApiSecret = "secret"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Alpaca.ApiKey)
	assert.Equal(t, "***", red.Alpaca.ApiSecret)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original is untouched.
	assert.Equal(t, "key", cfg.Alpaca.ApiKey)
}
