package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jalverson/predbot/internal/domain"
)

// CandleStore implements domain.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *pgxpool.Pool
}

// NewCandleStore creates a new CandleStore backed by the given connection pool.
func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

func scanCandleRows(rows pgx.Rows) ([]domain.Candle, error) {
	var candles []domain.Candle
	for rows.Next() {
		var (
			c       domain.Candle
			barTime time.Time
		)
		if err := rows.Scan(&barTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Timestamp = barTime.Unix()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Upsert inserts or replaces bars keyed by (symbol, bar_time) using a pgx
// batch with ON CONFLICT DO UPDATE.
func (s *CandleStore) Upsert(ctx context.Context, symbol string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	const query = `
		INSERT INTO candles (symbol, bar_time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, bar_time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(query,
			symbol, time.Unix(c.Timestamp, 0).UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert candles %s: %w", symbol, err)
		}
	}
	return nil
}

// ListRecent returns the most recent bars for a symbol, oldest to newest.
func (s *CandleStore) ListRecent(ctx context.Context, symbol string, limit int) ([]domain.Candle, error) {
	const query = `
		SELECT bar_time, open, high, low, close, volume
		FROM (
			SELECT bar_time, open, high, low, close, volume
			FROM candles
			WHERE symbol = $1
			ORDER BY bar_time DESC
			LIMIT $2
		) recent
		ORDER BY bar_time ASC`

	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent candles %s: %w", symbol, err)
	}
	defer rows.Close()

	candles, err := scanCandleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan candles %s: %w", symbol, err)
	}
	return candles, nil
}

// ListRange returns bars with open time in [from, to), oldest to newest.
func (s *CandleStore) ListRange(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	const query = `
		SELECT bar_time, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND bar_time >= $2 AND bar_time < $3
		ORDER BY bar_time ASC`

	rows, err := s.pool.Query(ctx, query, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list candles %s: %w", symbol, err)
	}
	defer rows.Close()

	candles, err := scanCandleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan candles %s: %w", symbol, err)
	}
	return candles, nil
}

// Compile-time interface check.
var _ domain.CandleStore = (*CandleStore)(nil)
