package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalverson/predbot/internal/domain"
)

type fakeProvider struct {
	quotes   map[string]domain.Quote
	candles  map[string][]domain.Candle
	failSyms map[string]bool
}

func (p *fakeProvider) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	if p.failSyms[symbol] {
		return domain.Quote{}, errors.New("provider down")
	}
	q, ok := p.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func (p *fakeProvider) GetCandles(_ context.Context, symbol string, _ string, _ int) ([]domain.Candle, error) {
	if p.failSyms[symbol] {
		return nil, errors.New("provider down")
	}
	return p.candles[symbol], nil
}

type fakeMarketCache struct {
	domain.MarketCache
	quotes  map[string]domain.Quote
	candles map[string][]domain.Candle
}

func newFakeMarketCache() *fakeMarketCache {
	return &fakeMarketCache{
		quotes:  map[string]domain.Quote{},
		candles: map[string][]domain.Candle{},
	}
}

func (c *fakeMarketCache) SetQuotes(_ context.Context, quotes map[string]domain.Quote) error {
	for sym, q := range quotes {
		c.quotes[sym] = q
	}
	return nil
}

func (c *fakeMarketCache) SetCandles(_ context.Context, symbol string, candles []domain.Candle) error {
	c.candles[symbol] = candles
	return nil
}

type fakeCandleStore struct {
	domain.CandleStore
	upserts map[string][]domain.Candle
}

func (s *fakeCandleStore) Upsert(_ context.Context, symbol string, candles []domain.Candle) error {
	if s.upserts == nil {
		s.upserts = map[string][]domain.Candle{}
	}
	s.upserts[symbol] = append(s.upserts[symbol], candles...)
	return nil
}

func TestRefreshPublishesQuotesAndCandles(t *testing.T) {
	provider := &fakeProvider{
		quotes: map[string]domain.Quote{
			"AAPL": {Symbol: "AAPL", Price: 189.5},
			"MSFT": {Symbol: "MSFT", Price: 402.0},
		},
		candles: map[string][]domain.Candle{
			"AAPL": {{Timestamp: 1700000000, Close: 189.0, Volume: 1000}},
		},
	}
	cache := newFakeMarketCache()
	store := &fakeCandleStore{}

	svc := NewMarketService(provider, cache, store,
		[]string{"AAPL", "MSFT"}, time.Minute, "5", 288, discardLogger())
	svc.Refresh(context.Background())

	assert.Equal(t, 189.5, cache.quotes["AAPL"].Price)
	assert.Equal(t, 402.0, cache.quotes["MSFT"].Price)

	require.Len(t, cache.candles["AAPL"], 1)
	require.Len(t, store.upserts["AAPL"], 1)
	assert.Equal(t, int64(1700000000), store.upserts["AAPL"][0].Timestamp)

	// MSFT had no candles; nothing published or persisted for it.
	assert.Empty(t, cache.candles["MSFT"])
	assert.Empty(t, store.upserts["MSFT"])
}

func TestRefreshIsolatesSymbolFailures(t *testing.T) {
	provider := &fakeProvider{
		quotes: map[string]domain.Quote{
			"NVDA": {Symbol: "NVDA", Price: 880.0},
		},
		candles: map[string][]domain.Candle{
			"NVDA": {{Timestamp: 1700000000, Close: 879.5}},
		},
		failSyms: map[string]bool{"TSLA": true},
	}
	cache := newFakeMarketCache()

	svc := NewMarketService(provider, cache, nil,
		[]string{"TSLA", "NVDA"}, time.Minute, "5", 288, discardLogger())
	svc.Refresh(context.Background())

	// TSLA failing never blocked NVDA.
	assert.Equal(t, 880.0, cache.quotes["NVDA"].Price)
	require.Len(t, cache.candles["NVDA"], 1)
	assert.NotContains(t, cache.quotes, "TSLA")
}
