package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jalverson/predbot/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. It keeps the
// full decision history; the shared cache holds only the bounded ring.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Append writes one audit entry. Entries are immutable once written.
func (s *AuditStore) Append(ctx context.Context, e domain.AuditEntry) error {
	const query = `
		INSERT INTO audit_log (ts, symbol, action, quantity, confidence, strength, reasons, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	reasons := e.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		e.Timestamp, e.Symbol, string(e.Action),
		e.Quantity, e.Confidence, e.Strength, reasons, e.OrderID,
	)
	if err != nil {
		return fmt.Errorf("postgres: append audit entry %s: %w", e.Symbol, err)
	}
	return nil
}

const auditSelectCols = `ts, symbol, action, quantity, confidence, strength, reasons, order_id`

func scanAuditRows(rows pgx.Rows) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			action string
		)
		if err := rows.Scan(
			&e.Timestamp, &e.Symbol, &action,
			&e.Quantity, &e.Confidence, &e.Strength, &e.Reasons, &e.OrderID,
		); err != nil {
			return nil, err
		}
		e.Action = domain.Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListRecent returns the most recent entries, newest first.
func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_log
		ORDER BY ts DESC
		LIMIT $1`, auditSelectCols)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit entries: %w", err)
	}
	return entries, nil
}

// ListBefore returns entries older than the cutoff, oldest first, for
// archival to blob storage.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_log
		WHERE ts < $1
		ORDER BY ts ASC`, auditSelectCols)

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	entries, err := scanAuditRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit entries: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
