package domain

import (
	"context"
	"time"
)

// StateCache publishes bot state to, and reads operator configuration from,
// the shared key/value cache. The dashboard consumes these keys directly, so
// the value shapes are a wire contract. Access is always through this
// interface, never through ambient globals.
type StateCache interface {
	// GetRiskConfig reads the "bot_config" key. ErrNotFound when unset.
	GetRiskConfig(ctx context.Context) (RiskConfig, error)
	SetRiskConfig(ctx context.Context, cfg RiskConfig) error

	// PublishPositions replaces the "bot_positions" snapshot.
	PublishPositions(ctx context.Context, positions []Position) error

	// PublishActions replaces the "bot_actions" ring (newest last, bounded).
	PublishActions(ctx context.Context, entries []AuditEntry) error

	// SetAPIStatus records broker connectivity ("valid" / "invalid").
	SetAPIStatus(ctx context.Context, status string) error
}

// PredictionCache reads and writes per-symbol prediction series in the
// shared cache ("predictions_7d_{symbol}"). The ML worker is the producer;
// the bot only reads. The setter exists for the worker-facing tools and for
// round-trip tests.
type PredictionCache interface {
	PredictionSource
	SetPredictions(ctx context.Context, symbol string, points []PredictionPoint, ttl time.Duration) error

	// PublishSignal prepends the evaluated signal to the
	// "trading_signals_{symbol}" series (newest first, bounded) so the
	// dashboard can show what the bot decided and why.
	PublishSignal(ctx context.Context, sig Signal) error
}

// MarketCache stores the latest quotes and candle series consumed by both
// the decision loop and the dashboard ("market_data", "chart_data_{symbol}").
type MarketCache interface {
	SetQuotes(ctx context.Context, quotes map[string]Quote) error
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	SetCandles(ctx context.Context, symbol string, candles []Candle) error
	GetCandles(ctx context.Context, symbol string) ([]Candle, error)
}

// RateLimiter provides distributed rate limiting, used to keep broker API
// calls under the provider's request budget across bot instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking, used to serialize decision
// cycles per symbol across bot instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of bot events (fills, forced exits,
// config reloads) to interested listeners such as the dashboard bridge.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
