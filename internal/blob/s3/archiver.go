package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jalverson/predbot/internal/domain"
)

// CandleArchiveStore is the narrow read surface the archiver needs from the
// candle store. The Postgres CandleStore satisfies it through ListRange.
type CandleArchiveStore interface {
	ListRange(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error)
}

// AuditArchiveStore is the narrow read surface the archiver needs from the
// audit store.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// not performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	candles CandleArchiveStore
	audit   AuditArchiveStore
	logger  *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, candles CandleArchiveStore, audit AuditArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		candles: candles,
		audit:   audit,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveCandles queries all bars for a symbol before the cutoff, serializes
// them to JSONL, and uploads the file to archive/candles/SYMBOL/YYYY-MM.jsonl.
// It returns the count of archived records.
func (a *ArchiveImpl) ArchiveCandles(ctx context.Context, symbol string, before time.Time) (int64, error) {
	candles, err := a.candles.ListRange(ctx, symbol, time.Time{}, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive candles query: %w", err)
	}
	if len(candles) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(candles)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive candles marshal: %w", err)
	}

	path := archivePath("candles/"+symbol, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive candles upload: %w", err)
	}

	count := int64(len(candles))
	a.logger.InfoContext(ctx, "candles archived",
		slog.String("symbol", symbol),
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// ArchiveAuditLog queries all audit entries before the cutoff, serializes
// them to JSONL, and uploads the file to archive/audit_log/YYYY-MM.jsonl.
// It returns the count of archived records.
func (a *ArchiveImpl) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log marshal: %w", err)
	}

	path := archivePath("audit_log", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log upload: %w", err)
	}

	count := int64(len(entries))
	a.logger.InfoContext(ctx, "audit log archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/candles/AAPL/2026-07.jsonl
//	archive/audit_log/2026-07.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
