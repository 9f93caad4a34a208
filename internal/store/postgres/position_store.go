package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jalverson/predbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. It backs
// the in-memory ledger so entry times survive restarts; the broker remains
// the source of truth for quantities.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert inserts or replaces the position row for a symbol.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			symbol, qty, avg_entry_price, market_value,
			unrealized_pl, unrealized_plpc, entry_time, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			qty = EXCLUDED.qty,
			avg_entry_price = EXCLUDED.avg_entry_price,
			market_value = EXCLUDED.market_value,
			unrealized_pl = EXCLUDED.unrealized_pl,
			unrealized_plpc = EXCLUDED.unrealized_plpc,
			entry_time = EXCLUDED.entry_time,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.Symbol, p.Quantity, p.AvgEntryPrice, p.MarketValue,
		p.UnrealizedPL, p.UnrealizedPLPC, p.EntryTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

// Delete removes the position row for a symbol. Deleting an absent symbol is
// not an error.
func (s *PositionStore) Delete(ctx context.Context, symbol string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE symbol = $1`, symbol); err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", symbol, err)
	}
	return nil
}

// List returns all persisted positions ordered by symbol.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	const query = `
		SELECT symbol, qty, avg_entry_price, market_value,
			unrealized_pl, unrealized_plpc, entry_time
		FROM positions
		ORDER BY symbol ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.Symbol, &p.Quantity, &p.AvgEntryPrice, &p.MarketValue,
			&p.UnrealizedPL, &p.UnrealizedPLPC, &p.EntryTime,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
