package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jalverson/predbot/internal/domain"
	"github.com/jalverson/predbot/internal/service"
	"github.com/jalverson/predbot/internal/strategy"
)

// maxStaleIntervals bounds how old the ledger snapshot may be, in decision
// intervals, before a symbol's cycle is skipped rather than acted upon.
const maxStaleIntervals = 2

// Engine is the fixed-cadence decision loop. Each tick it reloads the risk
// config snapshot from the shared cache, refreshes account and position
// state from the broker, and evaluates every symbol concurrently while
// serializing cycles per symbol.
type Engine struct {
	state       domain.StateCache
	predictions domain.PredictionSource
	broker      domain.Broker
	ledger      *service.Ledger
	gate        *service.RiskGate
	eval        strategy.Evaluator
	exec        *Executor
	audit       *service.AuditRecorder
	locks       domain.LockManager     // optional, serializes across instances
	signals     domain.PredictionCache // optional, mirrors evaluated signals for the dashboard
	inflight    *inflight
	defaultRisk domain.RiskConfig
	logger      *slog.Logger
}

// NewEngine creates the decision loop. locks may be nil for single-instance
// deployments; per-symbol serialization within the process is always on.
func NewEngine(
	state domain.StateCache,
	predictions domain.PredictionSource,
	broker domain.Broker,
	ledger *service.Ledger,
	gate *service.RiskGate,
	eval strategy.Evaluator,
	exec *Executor,
	audit *service.AuditRecorder,
	locks domain.LockManager,
	defaultRisk domain.RiskConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		state:       state,
		predictions: predictions,
		broker:      broker,
		ledger:      ledger,
		gate:        gate,
		eval:        eval,
		exec:        exec,
		audit:       audit,
		locks:       locks,
		inflight:    newInflight(),
		defaultRisk: defaultRisk,
		logger:      logger.With(slog.String("component", "engine")),
	}
}

// WithSignalSink makes the engine mirror every evaluated signal into the
// shared cache under trading_signals_{symbol}.
func (en *Engine) WithSignalSink(pc domain.PredictionCache) *Engine {
	en.signals = pc
	return en
}

// Run drives ticks until the context is cancelled. The tick interval follows
// the hot-reloadable trade_frequency: a config change takes effect on the
// next tick.
func (en *Engine) Run(ctx context.Context) error {
	interval := en.defaultRisk.Interval()
	en.logger.Info("decision loop started", slog.Duration("interval", interval))
	defer en.logger.Info("decision loop stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			risk := en.Tick(ctx, time.Now().UTC())
			if next := risk.Interval(); next != interval {
				interval = next
				ticker.Reset(interval)
				en.logger.Info("decision interval changed", slog.Duration("interval", interval))
			}
		}
	}
}

// Tick runs one full decision cycle across the symbol universe and returns
// the risk config snapshot it used.
func (en *Engine) Tick(ctx context.Context, now time.Time) domain.RiskConfig {
	risk := en.loadRisk(ctx)

	acct, err := en.broker.GetAccount(ctx)
	if err != nil {
		// Without a fresh account snapshot no position can be sized; skip
		// the whole cycle rather than trade against a guess.
		en.logger.ErrorContext(ctx, "account refresh failed, skipping cycle",
			slog.String("error", err.Error()),
		)
		return risk
	}

	if positions, err := en.broker.ListPositions(ctx); err != nil {
		en.logger.WarnContext(ctx, "position refresh failed",
			slog.String("error", err.Error()),
		)
	} else if err := en.ledger.Reconcile(ctx, positions, now); err != nil {
		en.logger.WarnContext(ctx, "ledger reconcile failed",
			slog.String("error", err.Error()),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range en.universe(risk) {
		sym := sym
		g.Go(func() error {
			en.evaluateSymbol(gctx, sym, risk, acct, now)
			return nil
		})
	}
	_ = g.Wait()
	return risk
}

// universe is the allowed symbols plus any symbol we still hold, so forced
// exits keep running for positions whose symbol was removed from the list.
func (en *Engine) universe(risk domain.RiskConfig) []string {
	seen := make(map[string]struct{}, len(risk.AllowedSymbols))
	out := make([]string, 0, len(risk.AllowedSymbols))
	for _, s := range risk.AllowedSymbols {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, p := range en.ledger.Snapshot() {
		if _, dup := seen[p.Symbol]; !dup {
			seen[p.Symbol] = struct{}{}
			out = append(out, p.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// loadRisk reads the bot_config snapshot from the shared cache, falling back
// to the configured defaults when the key is missing or unreadable. The
// snapshot is replaced whole, never merged field by field.
func (en *Engine) loadRisk(ctx context.Context) domain.RiskConfig {
	if en.state == nil {
		return en.defaultRisk
	}
	risk, err := en.state.GetRiskConfig(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			en.logger.WarnContext(ctx, "risk config load failed, using defaults",
				slog.String("error", err.Error()),
			)
		}
		return en.defaultRisk
	}
	if err := risk.Validate(); err != nil {
		en.logger.WarnContext(ctx, "risk config invalid, using defaults",
			slog.String("error", err.Error()),
		)
		return en.defaultRisk
	}
	return risk
}

// evaluateSymbol runs one decision cycle for one symbol. Every path through
// it records exactly one audit entry (the executor records for paths that
// reach it), and failures stay contained to the symbol.
func (en *Engine) evaluateSymbol(ctx context.Context, sym string, risk domain.RiskConfig, acct domain.AccountSnapshot, now time.Time) {
	if !en.inflight.tryAcquire(sym) {
		en.logger.Warn("previous cycle still in flight, skipping",
			slog.String("symbol", sym),
		)
		return
	}
	defer en.inflight.release(sym)

	if en.locks != nil {
		unlock, err := en.locks.Acquire(ctx, "decision:"+sym, risk.Interval())
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				en.logger.WarnContext(ctx, "decision lock failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		defer unlock()
	}

	if en.ledger.StaleBy(maxStaleIntervals*risk.Interval(), now) {
		en.recordHold(ctx, sym, now, fmt.Sprintf("position snapshot stale beyond %d intervals: %v",
			maxStaleIntervals, domain.ErrStaleData))
		return
	}

	pos, held := en.ledger.Get(sym)

	sig := domain.Signal{Symbol: sym, Timestamp: now, Action: domain.ActionHold}

	// A disabled bot submits nothing at all, forced exits included: open
	// positions sit untouched until the operator re-enables trading.
	if !risk.Enabled {
		dec := en.gate.Admit(sig, positionPtr(pos, held), acct, risk)
		en.recordRejection(ctx, sig, dec)
		return
	}

	// Forced exits outrank the risk gate and any BUY signal present this
	// cycle.
	if held {
		if reason, fire := service.ForcedExit(pos, risk, now); fire {
			en.executeForcedExit(ctx, sym, pos, reason, now)
			return
		}
	}

	pred, err := en.predictions.LatestPrediction(ctx, sym)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			en.recordHold(ctx, sym, now, "no prediction available")
		} else {
			en.recordHold(ctx, sym, now, fmt.Sprintf("prediction fetch failed: %v", err))
		}
		return
	}

	quote, err := en.broker.GetLatestQuote(ctx, sym)
	if err != nil {
		en.recordHold(ctx, sym, now, fmt.Sprintf("quote fetch failed: %v", err))
		return
	}

	sig, err = en.eval.Evaluate(pred, quote.Price, risk, now)
	if err != nil {
		en.recordHold(ctx, sym, now, fmt.Sprintf("evaluation failed: %v", err))
		return
	}

	if en.signals != nil {
		if err := en.signals.PublishSignal(ctx, sig); err != nil {
			en.logger.WarnContext(ctx, "signal publish failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
	}

	if sig.Action == domain.ActionHold {
		en.recordHold(ctx, sym, now, sig.Reason)
		return
	}

	dec := en.gate.Admit(sig, positionPtr(pos, held), acct, risk)
	if !dec.Admitted {
		en.recordRejection(ctx, sig, dec)
		return
	}

	var qty float64
	if sig.Action == domain.ActionBuy {
		qty = float64(PositionSize(acct, risk, quote.Price))
	} else {
		// SELL closes the full position, fractional shares included.
		qty = pos.Quantity
	}
	if qty <= 0 {
		en.recordHold(ctx, sym, now, "computed order quantity is zero")
		return
	}

	if _, err := en.exec.Execute(ctx, Request{
		Signal:   sig,
		Quantity: qty,
		Reasons:  []string{sig.Reason, dec.Reason},
	}); err != nil {
		en.logger.WarnContext(ctx, "execution failed",
			slog.String("symbol", sym),
			slog.String("error", err.Error()),
		)
	}
}

func (en *Engine) executeForcedExit(ctx context.Context, sym string, pos domain.Position, reason domain.ExitReason, now time.Time) {
	if pos.Quantity <= 0 {
		en.recordHold(ctx, sym, now, fmt.Sprintf("forced exit %s skipped: position quantity %v is not sellable", reason, pos.Quantity))
		return
	}

	sig := domain.Signal{
		Symbol:    sym,
		Timestamp: now,
		Action:    domain.ActionSell,
		Strength:  1,
	}
	if _, err := en.exec.Execute(ctx, Request{
		Signal:   sig,
		Quantity: pos.Quantity,
		Reasons: []string{
			fmt.Sprintf("forced exit: %s", reason),
			fmt.Sprintf("unrealized P/L %.2f%% after %s", pos.UnrealizedPLPC*100, pos.HeldFor(now).Round(time.Minute)),
		},
		ExitReason: reason,
	}); err != nil {
		en.logger.WarnContext(ctx, "forced exit failed",
			slog.String("symbol", sym),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
	}
}

func (en *Engine) recordHold(ctx context.Context, sym string, now time.Time, reason string) {
	en.audit.Record(ctx, domain.AuditEntry{
		Timestamp: now,
		Symbol:    sym,
		Action:    domain.ActionHold,
		Reasons:   []string{reason},
	})
}

func (en *Engine) recordRejection(ctx context.Context, sig domain.Signal, dec domain.Decision) {
	reasons := make([]string, 0, 2)
	if sig.Reason != "" {
		reasons = append(reasons, sig.Reason)
	}
	reasons = append(reasons, "rejected: "+dec.Reason)
	en.audit.Record(ctx, domain.AuditEntry{
		Timestamp:  sig.Timestamp,
		Symbol:     sig.Symbol,
		Action:     sig.Action,
		Confidence: sig.Confidence,
		Strength:   sig.Strength,
		Reasons:    reasons,
	})
}

func positionPtr(pos domain.Position, held bool) *domain.Position {
	if !held {
		return nil
	}
	return &pos
}
