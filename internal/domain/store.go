package domain

import (
	"context"
	"time"
)

// CandleStore persists OHLCV history.
type CandleStore interface {
	// Upsert inserts or replaces bars keyed by (symbol, timestamp).
	Upsert(ctx context.Context, symbol string, candles []Candle) error
	// ListRecent returns the most recent bars, oldest to newest.
	ListRecent(ctx context.Context, symbol string, limit int) ([]Candle, error)
	// ListRange returns bars with open time in [from, to), oldest to newest.
	ListRange(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error)
}

// PredictionStore persists model predictions for later accuracy analysis.
type PredictionStore interface {
	Insert(ctx context.Context, points []PredictionPoint) error
	ListRecent(ctx context.Context, symbol string, limit int) ([]PredictionPoint, error)
}

// PositionStore persists the position ledger so state survives restarts.
type PositionStore interface {
	Upsert(ctx context.Context, p Position) error
	Delete(ctx context.Context, symbol string) error
	List(ctx context.Context) ([]Position, error)
}

// AuditStore persists the full decision audit trail (the shared cache only
// keeps the bounded ring).
type AuditStore interface {
	Append(ctx context.Context, e AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
	// ListBefore returns entries older than the cutoff, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
