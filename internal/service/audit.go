package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jalverson/predbot/internal/domain"
)

// AuditRecorder keeps the bounded in-process ring of decision outcomes,
// mirrors it to the shared cache for the dashboard, and appends every entry
// to the durable audit store. Entries are immutable once recorded.
type AuditRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry

	cache  domain.StateCache // optional
	store  domain.AuditStore // optional
	logger *slog.Logger
}

// NewAuditRecorder creates an AuditRecorder. cache and store may be nil; the
// ring still works in memory, which is how unit tests use it.
func NewAuditRecorder(cache domain.StateCache, store domain.AuditStore, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{
		cache:  cache,
		store:  store,
		logger: logger.With(slog.String("component", "audit")),
	}
}

// Record appends one entry to the ring and fans it out. Cache and store
// failures are logged, never propagated: an audit write must not abort the
// decision cycle that produced it.
func (r *AuditRecorder) Record(ctx context.Context, e domain.AuditEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > domain.AuditRingSize {
		r.entries = r.entries[len(r.entries)-domain.AuditRingSize:]
	}
	ring := make([]domain.AuditEntry, len(r.entries))
	copy(ring, r.entries)
	r.mu.Unlock()

	r.logger.Info("decision recorded",
		slog.String("symbol", e.Symbol),
		slog.String("action", string(e.Action)),
		slog.Float64("quantity", e.Quantity),
		slog.String("order_id", e.OrderID),
		slog.Any("reasons", e.Reasons),
	)

	if r.cache != nil {
		if err := r.cache.PublishActions(ctx, ring); err != nil {
			r.logger.WarnContext(ctx, "publish actions failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if r.store != nil {
		if err := r.store.Append(ctx, e); err != nil {
			r.logger.WarnContext(ctx, "audit append failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// Ring returns a copy of the current ring, newest last.
func (r *AuditRecorder) Ring() []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
