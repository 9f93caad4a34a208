package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jalverson/predbot/internal/domain"
)

// PredictionStore implements domain.PredictionStore using PostgreSQL. The
// table is the long-term record behind the short-lived cache series, kept so
// model accuracy can be analyzed after the cache keys expire.
type PredictionStore struct {
	pool *pgxpool.Pool
}

// NewPredictionStore creates a new PredictionStore backed by the given pool.
func NewPredictionStore(pool *pgxpool.Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

// Insert writes prediction points, skipping duplicates on
// (symbol, predicted_at).
func (s *PredictionStore) Insert(ctx context.Context, points []domain.PredictionPoint) error {
	if len(points) == 0 {
		return nil
	}

	const query = `
		INSERT INTO predictions (symbol, predicted_at, value, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, predicted_at) DO NOTHING`

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(query,
			p.Symbol, time.Unix(p.Timestamp, 0).UTC(), p.Value, p.Confidence,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert predictions: %w", err)
		}
	}
	return nil
}

// ListRecent returns the most recent predictions for a symbol, newest first.
func (s *PredictionStore) ListRecent(ctx context.Context, symbol string, limit int) ([]domain.PredictionPoint, error) {
	const query = `
		SELECT symbol, predicted_at, value, confidence
		FROM predictions
		WHERE symbol = $1
		ORDER BY predicted_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []domain.PredictionPoint
	for rows.Next() {
		var (
			p           domain.PredictionPoint
			predictedAt time.Time
		)
		if err := rows.Scan(&p.Symbol, &predictedAt, &p.Value, &p.Confidence); err != nil {
			return nil, fmt.Errorf("postgres: scan prediction: %w", err)
		}
		p.Timestamp = predictedAt.Unix()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list predictions %s: %w", symbol, err)
	}
	return points, nil
}

// Compile-time interface check.
var _ domain.PredictionStore = (*PredictionStore)(nil)
