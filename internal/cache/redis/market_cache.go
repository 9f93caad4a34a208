package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jalverson/predbot/internal/domain"
)

const keyMarketData = "market_data"

// MarketCache implements domain.MarketCache. Quotes live in one shared
// "market_data" map keyed by symbol; candle series live under
// "chart_data_{symbol}". The dashboard reads both keys directly.
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func chartKey(symbol string) string {
	return "chart_data_" + symbol
}

// SetQuotes merges the given quotes into the shared market_data map. Symbols
// not present in the argument keep their previous values.
func (mc *MarketCache) SetQuotes(ctx context.Context, quotes map[string]domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	existing, err := mc.readQuotes(ctx)
	if err != nil {
		return err
	}
	for sym, q := range quotes {
		existing[sym] = q
	}

	raw, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", keyMarketData, err)
	}
	if err := mc.rdb.Set(ctx, keyMarketData, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", keyMarketData, err)
	}
	return nil
}

// GetQuote returns the cached quote for a symbol, or domain.ErrNotFound when
// the symbol has never been quoted.
func (mc *MarketCache) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	quotes, err := mc.readQuotes(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	q.Symbol = symbol
	return q, nil
}

// SetCandles replaces the symbol's candle series.
func (mc *MarketCache) SetCandles(ctx context.Context, symbol string, candles []domain.Candle) error {
	key := chartKey(symbol)

	if candles == nil {
		candles = []domain.Candle{}
	}
	raw, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	if err := mc.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// GetCandles returns the symbol's candle series, oldest first. It returns
// domain.ErrNotFound when no series has been written.
func (mc *MarketCache) GetCandles(ctx context.Context, symbol string) ([]domain.Candle, error) {
	key := chartKey(symbol)

	raw, err := mc.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}

	var candles []domain.Candle
	if err := json.Unmarshal(raw, &candles); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return candles, nil
}

func (mc *MarketCache) readQuotes(ctx context.Context) (map[string]domain.Quote, error) {
	raw, err := mc.rdb.Get(ctx, keyMarketData).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]domain.Quote{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", keyMarketData, err)
	}

	quotes := map[string]domain.Quote{}
	if err := json.Unmarshal(raw, &quotes); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", keyMarketData, err)
	}
	return quotes, nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
