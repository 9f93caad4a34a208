package domain

import "context"

// Broker is the capability interface over the brokerage API. The decision
// engine depends only on this contract; concrete adapters (Alpaca REST, the
// in-memory paper broker used by tests) implement it.
type Broker interface {
	ListPositions(ctx context.Context) ([]Position, error)
	GetAccount(ctx context.Context) (AccountSnapshot, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetOrder(ctx context.Context, orderID string) (OrderResult, error)
	GetLatestQuote(ctx context.Context, symbol string) (Quote, error)
}

// MarketData is the quote/candle fetch contract implemented by provider
// adapters. Both reads are idempotent; retry policy is owned by the adapter.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	// GetCandles returns up to count bars at the given resolution
	// ("1", "5", "15", minutes), ordered oldest to newest.
	GetCandles(ctx context.Context, symbol string, resolution string, count int) ([]Candle, error)
}

// PredictionSource supplies the most recent model prediction per symbol.
// Implementations return ErrNotFound when no prediction exists.
type PredictionSource interface {
	LatestPrediction(ctx context.Context, symbol string) (PredictionPoint, error)
}
