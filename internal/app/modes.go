package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jalverson/predbot/internal/broker/alpaca"
	"github.com/jalverson/predbot/internal/domain"
	"github.com/jalverson/predbot/internal/executor"
	"github.com/jalverson/predbot/internal/feed"
	"github.com/jalverson/predbot/internal/marketdata/finnhub"
	"github.com/jalverson/predbot/internal/notify"
	"github.com/jalverson/predbot/internal/service"
	"github.com/jalverson/predbot/internal/strategy"
)

// predictionMirrorInterval is how often fetch mode copies the latest cached
// prediction per symbol into Postgres for later accuracy analysis.
const predictionMirrorInterval = 5 * time.Minute

// TradeMode starts the decision loop against the brokerage and, when the
// real-time feed is enabled, the trade WebSocket stream.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	broker := a.buildBroker(deps)
	a.probeAPIStatus(ctx, broker, deps.StateCache)

	defaultRisk := a.cfg.Bot.ToRisk()
	a.seedRiskConfig(ctx, deps.StateCache, defaultRisk)

	ledger := service.NewLedger(deps.PositionStore, deps.StateCache, deps.SignalBus, a.logger)
	if err := ledger.Restore(ctx); err != nil {
		a.logger.WarnContext(ctx, "ledger restore failed, starting empty",
			slog.String("error", err.Error()),
		)
	}

	audit := service.NewAuditRecorder(deps.StateCache, deps.AuditStore, a.logger)
	gate := service.NewRiskGate(a.logger)
	eval := strategy.NewEvaluator(defaultRisk.Interval())

	exec := executor.NewExecutor(broker, ledger, audit, a.logger).
		WithAlerter(deps.Notifier)

	engine := executor.NewEngine(
		deps.StateCache,
		deps.PredictionCache,
		broker,
		ledger,
		gate,
		eval,
		exec,
		audit,
		deps.LockManager,
		defaultRisk,
		a.logger,
	).WithSignalSink(deps.PredictionCache)

	_ = deps.Notifier.Notify(ctx, notify.EventBotStarted, "Bot started",
		fmt.Sprintf("mode=%s interval=%s", a.cfg.Mode, defaultRisk.Interval()))
	defer func() {
		_ = deps.Notifier.Notify(context.Background(), notify.EventBotStopped, "Bot stopped", "")
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(ctx)
	})

	if a.cfg.Finnhub.StreamEnabled && a.cfg.Finnhub.ApiKey != "" {
		wsFeed := feed.NewFinnhubWSFeed(
			a.cfg.Finnhub.WsURL,
			a.cfg.Finnhub.ApiKey,
			a.cfg.Bot.AllowedSymbols,
			deps.MarketCache,
			a.logger,
		)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
	}

	return g.Wait()
}

// FetchMode runs the market data refresh loop: quotes and candles from the
// provider into the shared cache and Postgres, plus a mirror of cached
// predictions into the prediction history table.
func (a *App) FetchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting fetch mode")

	provider := finnhub.NewClient(a.cfg.Finnhub.BaseURL, a.cfg.Finnhub.ApiKey).
		WithRateLimiter(deps.RateLimiter)

	marketSvc := service.NewMarketService(
		provider,
		deps.MarketCache,
		deps.CandleStore,
		a.cfg.Bot.AllowedSymbols,
		a.cfg.Fetch.Interval.Duration,
		a.cfg.Fetch.CandleResolution,
		a.cfg.Fetch.CandleCount,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return marketSvc.Run(ctx)
	})

	if deps.PredictionStore != nil {
		g.Go(func() error {
			return a.mirrorPredictions(ctx, deps)
		})
	}

	return g.Wait()
}

// ArchiveMode runs one archival pass: candles per symbol and the audit log,
// everything older than the retention window, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 and postgres")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive pass",
		slog.Time("cutoff", cutoff),
	)

	var total int64
	for _, sym := range a.cfg.Bot.AllowedSymbols {
		n, err := deps.Archiver.ArchiveCandles(ctx, sym, cutoff)
		if err != nil {
			return fmt.Errorf("app: archive candles %s: %w", sym, err)
		}
		total += n
	}

	n, err := deps.Archiver.ArchiveAuditLog(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive audit log: %w", err)
	}
	total += n

	a.logger.InfoContext(ctx, "archive pass complete", slog.Int64("records", total))
	return nil
}

// FullMode runs trading and data fetching in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.TradeMode(ctx, deps)
	})
	g.Go(func() error {
		return a.FetchMode(ctx, deps)
	})

	return g.Wait()
}

// buildBroker constructs the Alpaca adapter, honouring the paper-trading
// safety switch.
func (a *App) buildBroker(deps *Dependencies) *alpaca.Client {
	tradeURL := a.cfg.Alpaca.TradeURL
	if a.cfg.Alpaca.Paper {
		tradeURL = alpaca.PaperTradeURL
	}
	return alpaca.NewClient(
		tradeURL,
		a.cfg.Alpaca.DataURL,
		a.cfg.Alpaca.ApiKey,
		a.cfg.Alpaca.ApiSecret,
	).WithRateLimiter(deps.RateLimiter)
}

// probeAPIStatus checks broker connectivity once at startup and records the
// outcome for the dashboard status widget.
func (a *App) probeAPIStatus(ctx context.Context, broker domain.Broker, state domain.StateCache) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status := "valid"
	if _, err := broker.GetAccount(probeCtx); err != nil {
		status = "invalid"
		a.logger.WarnContext(ctx, "broker API probe failed",
			slog.String("error", err.Error()),
		)
	}
	if err := state.SetAPIStatus(ctx, status); err != nil {
		a.logger.WarnContext(ctx, "api status write failed",
			slog.String("error", err.Error()),
		)
	}
}

// seedRiskConfig writes the configured defaults to the shared cache only if
// no bot_config exists yet, so a dashboard-tuned config is never clobbered
// by a restart.
func (a *App) seedRiskConfig(ctx context.Context, state domain.StateCache, defaults domain.RiskConfig) {
	_, err := state.GetRiskConfig(ctx)
	if err == nil {
		return
	}
	if !errors.Is(err, domain.ErrNotFound) {
		a.logger.WarnContext(ctx, "risk config read failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if err := state.SetRiskConfig(ctx, defaults); err != nil {
		a.logger.WarnContext(ctx, "risk config seed failed",
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.InfoContext(ctx, "seeded default risk config")
}

// mirrorPredictions copies the newest cached prediction per symbol into the
// history table. Duplicate points are skipped by the store.
func (a *App) mirrorPredictions(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(predictionMirrorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, sym := range a.cfg.Bot.AllowedSymbols {
				point, err := deps.PredictionCache.LatestPrediction(ctx, sym)
				if err != nil {
					if !errors.Is(err, domain.ErrNotFound) {
						a.logger.WarnContext(ctx, "prediction read failed",
							slog.String("symbol", sym),
							slog.String("error", err.Error()),
						)
					}
					continue
				}
				if err := deps.PredictionStore.Insert(ctx, []domain.PredictionPoint{point}); err != nil {
					a.logger.WarnContext(ctx, "prediction mirror failed",
						slog.String("symbol", sym),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}
