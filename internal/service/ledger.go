package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jalverson/predbot/internal/domain"
)

// Ledger is the authoritative record of open positions. It is the single
// mutation point: positions change only through confirmed broker fills
// (ApplyFill) or a broker reconciliation (Reconcile), never speculatively on
// order submission. Everyone else reads consistent snapshots.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
	lastSync  time.Time

	store  domain.PositionStore // optional persistence
	cache  domain.StateCache    // optional dashboard publishing
	bus    domain.SignalBus     // optional event fan-out
	logger *slog.Logger
}

// NewLedger creates a Ledger. store, cache, and bus may each be nil; the
// ledger then runs purely in memory, which is how unit tests use it.
func NewLedger(store domain.PositionStore, cache domain.StateCache, bus domain.SignalBus, logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]domain.Position),
		store:     store,
		cache:     cache,
		bus:       bus,
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// Restore loads persisted positions at startup so entry times survive a
// process restart. Broker reconciliation overwrites quantities on the first
// cycle; only locally tracked fields (entry time) truly depend on this.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	persisted, err := l.store.List(ctx)
	if err != nil {
		return fmt.Errorf("ledger: restore: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range persisted {
		l.positions[p.Symbol] = p
	}
	l.logger.Info("ledger restored", slog.Int("positions", len(persisted)))
	return nil
}

// Get returns a copy of the position for the symbol, if any.
func (l *Ledger) Get(symbol string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Snapshot returns a copy of all open positions.
func (l *Ledger) Snapshot() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// LastSync returns the time of the most recent successful broker
// reconciliation.
func (l *Ledger) LastSync() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSync
}

// StaleBy reports whether the ledger snapshot is older than the given bound.
// A ledger that has never been reconciled is always stale.
func (l *Ledger) StaleBy(bound time.Duration, now time.Time) bool {
	last := l.LastSync()
	if last.IsZero() {
		return true
	}
	return now.Sub(last) > bound
}

// Reconcile replaces the in-memory snapshot with the broker's position list.
// The broker is the source of truth for quantities, prices, and unrealized
// P&L; entry times are local knowledge and are preserved across the merge
// (the brokerage API does not report them).
func (l *Ledger) Reconcile(ctx context.Context, brokerPositions []domain.Position, now time.Time) error {
	l.mu.Lock()

	next := make(map[string]domain.Position, len(brokerPositions))
	for _, p := range brokerPositions {
		if prev, ok := l.positions[p.Symbol]; ok && !prev.EntryTime.IsZero() {
			p.EntryTime = prev.EntryTime
		} else if p.EntryTime.IsZero() {
			p.EntryTime = now
		}
		next[p.Symbol] = p
	}

	var removed []string
	for sym := range l.positions {
		if _, ok := next[sym]; !ok {
			removed = append(removed, sym)
		}
	}

	l.positions = next
	l.lastSync = now
	snapshot := make([]domain.Position, 0, len(next))
	for _, p := range next {
		snapshot = append(snapshot, p)
	}
	l.mu.Unlock()

	for _, p := range snapshot {
		l.persistUpsert(ctx, p)
	}
	for _, sym := range removed {
		l.persistDelete(ctx, sym)
	}
	l.publish(ctx, snapshot)
	return nil
}

// ApplyFill folds a confirmed fill into the ledger. BUY fills recompute the
// average entry price atomically with the quantity; SELL fills reduce the
// quantity and delete the position entirely when it reaches zero, leaving no
// zero-quantity residue. It returns the resulting position and whether the
// fill closed it.
func (l *Ledger) ApplyFill(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64, now time.Time) (domain.Position, bool, error) {
	if qty <= 0 || price <= 0 {
		return domain.Position{}, false, fmt.Errorf("ledger: fill %s qty=%.4f price=%.4f: %w",
			symbol, qty, price, domain.ErrInvalidInput)
	}

	l.mu.Lock()
	pos, exists := l.positions[symbol]

	var closed bool
	switch side {
	case domain.OrderSideBuy:
		if !exists {
			pos = domain.Position{Symbol: symbol, EntryTime: now}
		}
		total := pos.Quantity + qty
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + price*qty) / total
		pos.Quantity = total

	case domain.OrderSideSell:
		if !exists {
			l.mu.Unlock()
			return domain.Position{}, false, fmt.Errorf("ledger: sell fill for flat symbol %s: %w",
				symbol, domain.ErrInvalidInput)
		}
		pos.Quantity -= qty
		if pos.Quantity <= 1e-9 {
			pos.Quantity = 0
			closed = true
		}
	}

	if closed {
		delete(l.positions, symbol)
	} else {
		pos.MarketValue = pos.Quantity * price
		pos.UnrealizedPL = (price - pos.AvgEntryPrice) * pos.Quantity
		pos.UnrealizedPLPC = pos.UnrealizedFraction(price)
		l.positions[symbol] = pos
	}
	snapshot := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		snapshot = append(snapshot, p)
	}
	l.mu.Unlock()

	if closed {
		l.persistDelete(ctx, symbol)
	} else {
		l.persistUpsert(ctx, pos)
	}
	l.publish(ctx, snapshot)

	l.logger.Info("fill applied",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Float64("qty", qty),
		slog.Float64("price", price),
		slog.Bool("closed", closed),
	)
	return pos, closed, nil
}

// persistUpsert and persistDelete keep the store in sync. Store failures are
// logged, not fatal: the broker remains the recoverable source of truth.
func (l *Ledger) persistUpsert(ctx context.Context, p domain.Position) {
	if l.store == nil {
		return
	}
	if err := l.store.Upsert(ctx, p); err != nil {
		l.logger.WarnContext(ctx, "position upsert failed",
			slog.String("symbol", p.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) persistDelete(ctx context.Context, symbol string) {
	if l.store == nil {
		return
	}
	if err := l.store.Delete(ctx, symbol); err != nil {
		l.logger.WarnContext(ctx, "position delete failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) publish(ctx context.Context, snapshot []domain.Position) {
	if l.cache != nil {
		if err := l.cache.PublishPositions(ctx, snapshot); err != nil {
			l.logger.WarnContext(ctx, "publish positions failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if l.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":     "positions_updated",
			"positions": len(snapshot),
		})
		if err := l.bus.Publish(ctx, "bot_events", evt); err != nil {
			l.logger.WarnContext(ctx, "publish event failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// ForcedExit evaluates the risk-limit exits for an open position in strict
// priority order: stop-loss, then take-profit, then the holding-period cap.
// At most one reason fires per cycle so a position past several limits at
// once still produces a single SELL.
func ForcedExit(pos domain.Position, risk domain.RiskConfig, now time.Time) (domain.ExitReason, bool) {
	if math.Abs(pos.Quantity) < 1e-9 {
		return "", false
	}

	switch {
	case pos.UnrealizedPLPC <= -risk.StopLoss:
		return domain.ExitStopLoss, true
	case pos.UnrealizedPLPC >= risk.TakeProfit:
		return domain.ExitTakeProfit, true
	case !pos.EntryTime.IsZero() && pos.HeldFor(now) >= risk.MaxHoldingPeriod():
		return domain.ExitMaxHolding, true
	default:
		return "", false
	}
}
