package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jalverson/predbot/internal/domain"
)

// PredictionCache implements domain.PredictionCache over per-symbol JSON
// arrays written by the ML worker under "predictions_7d_{symbol}".
type PredictionCache struct {
	rdb *redis.Client
}

// NewPredictionCache creates a PredictionCache backed by the given Client.
func NewPredictionCache(c *Client) *PredictionCache {
	return &PredictionCache{rdb: c.Underlying()}
}

func predictionKey(symbol string) string {
	return "predictions_7d_" + symbol
}

// LatestPrediction returns the newest point of the symbol's prediction
// series. It returns domain.ErrNotFound when the series is absent or empty,
// which the engine treats as "no prediction yet", not a failure.
func (pc *PredictionCache) LatestPrediction(ctx context.Context, symbol string) (domain.PredictionPoint, error) {
	key := predictionKey(symbol)

	raw, err := pc.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PredictionPoint{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PredictionPoint{}, fmt.Errorf("redis: get %s: %w", key, err)
	}

	var points []domain.PredictionPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return domain.PredictionPoint{}, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	if len(points) == 0 {
		return domain.PredictionPoint{}, domain.ErrNotFound
	}

	latest := points[0]
	for _, p := range points[1:] {
		if p.Timestamp > latest.Timestamp {
			latest = p
		}
	}
	latest.Symbol = symbol
	return latest, nil
}

// SetPredictions replaces the symbol's prediction series with the given
// points. A zero ttl leaves the key without expiry.
func (pc *PredictionCache) SetPredictions(ctx context.Context, symbol string, points []domain.PredictionPoint, ttl time.Duration) error {
	key := predictionKey(symbol)

	if points == nil {
		points = []domain.PredictionPoint{}
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	if err := pc.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// signalSeriesMax bounds the trading_signals_{symbol} series.
const signalSeriesMax = 100

type signalEntry struct {
	Timestamp int64   `json:"t"`
	Action    string  `json:"action"`
	Strength  float64 `json:"strength"`
	Conf      float64 `json:"conf"`
	Reason    string  `json:"reason,omitempty"`
}

func signalKey(symbol string) string {
	return "trading_signals_" + symbol
}

// PublishSignal prepends the evaluated signal to the symbol's signal series,
// newest first, trimming to signalSeriesMax entries.
func (pc *PredictionCache) PublishSignal(ctx context.Context, sig domain.Signal) error {
	key := signalKey(sig.Symbol)

	var series []signalEntry
	raw, err := pc.rdb.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: get %s: %w", key, err)
	}
	if err == nil {
		if err := json.Unmarshal(raw, &series); err != nil {
			return fmt.Errorf("redis: decode %s: %w", key, err)
		}
	}

	entry := signalEntry{
		Timestamp: sig.Timestamp.Unix(),
		Action:    string(sig.Action),
		Strength:  sig.Strength,
		Conf:      sig.Confidence,
		Reason:    sig.Reason,
	}
	series = append([]signalEntry{entry}, series...)
	if len(series) > signalSeriesMax {
		series = series[:signalSeriesMax]
	}

	out, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	if err := pc.rdb.Set(ctx, key, out, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PredictionCache = (*PredictionCache)(nil)
