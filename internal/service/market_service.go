package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jalverson/predbot/internal/domain"
)

// MarketService polls the market-data provider for quotes and intraday
// candles, publishes them to the shared cache for the dashboard, and upserts
// the candle history into Postgres for the ML worker. Provider failures are
// isolated per symbol: one bad fetch never blocks the rest of the universe.
type MarketService struct {
	provider   domain.MarketData
	cache      domain.MarketCache
	candles    domain.CandleStore // optional
	symbols    []string
	interval   time.Duration
	resolution string
	window     int
	logger     *slog.Logger
}

// Default candle window: one trading day at 5-minute resolution.
const (
	defaultResolution = "5"
	defaultWindow     = 288
)

// NewMarketService creates a MarketService polling the given symbols at the
// given interval. resolution is the bar size in minutes and window is how
// many bars one refresh fetches; zero values fall back to one day of
// 5-minute bars.
func NewMarketService(
	provider domain.MarketData,
	cache domain.MarketCache,
	candles domain.CandleStore,
	symbols []string,
	interval time.Duration,
	resolution string,
	window int,
	logger *slog.Logger,
) *MarketService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if resolution == "" {
		resolution = defaultResolution
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &MarketService{
		provider:   provider,
		cache:      cache,
		candles:    candles,
		symbols:    symbols,
		interval:   interval,
		resolution: resolution,
		window:     window,
		logger:     logger.With(slog.String("component", "market_service")),
	}
}

// Run polls until the context is cancelled. The first refresh happens
// immediately so the cache is warm before the decision loop's first tick.
func (s *MarketService) Run(ctx context.Context) error {
	s.logger.Info("market service started",
		slog.Int("symbols", len(s.symbols)),
		slog.Duration("interval", s.interval),
	)
	defer s.logger.Info("market service stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh fetches quotes and candles for every symbol once.
func (s *MarketService) Refresh(ctx context.Context) {
	quotes := make(map[string]domain.Quote, len(s.symbols))
	for _, sym := range s.symbols {
		q, err := s.provider.GetQuote(ctx, sym)
		if err != nil {
			s.logger.WarnContext(ctx, "quote fetch failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		quotes[sym] = q
	}
	if len(quotes) > 0 {
		if err := s.cache.SetQuotes(ctx, quotes); err != nil {
			s.logger.WarnContext(ctx, "quote publish failed",
				slog.String("error", err.Error()),
			)
		}
	}

	for _, sym := range s.symbols {
		candles, err := s.provider.GetCandles(ctx, sym, s.resolution, s.window)
		if err != nil {
			s.logger.WarnContext(ctx, "candle fetch failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(candles) == 0 {
			continue
		}
		if err := s.cache.SetCandles(ctx, sym, candles); err != nil {
			s.logger.WarnContext(ctx, "candle publish failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
		if s.candles != nil {
			if err := s.candles.Upsert(ctx, sym, candles); err != nil {
				s.logger.WarnContext(ctx, "candle upsert failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
