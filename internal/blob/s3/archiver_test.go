package s3blob

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalverson/predbot/internal/domain"
)

type fakeBlobWriter struct {
	puts map[string]string
}

func newFakeBlobWriter() *fakeBlobWriter {
	return &fakeBlobWriter{puts: make(map[string]string)}
}

func (f *fakeBlobWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.puts[path] = string(b)
	return nil
}

func (f *fakeBlobWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

type fakeCandleSource struct {
	candles []domain.Candle
	gotTo   time.Time
}

func (f *fakeCandleSource) ListRange(_ context.Context, _ string, _, to time.Time) ([]domain.Candle, error) {
	f.gotTo = to
	return f.candles, nil
}

type fakeAuditSource struct {
	entries []domain.AuditEntry
}

func (f *fakeAuditSource) ListBefore(_ context.Context, _ time.Time) ([]domain.AuditEntry, error) {
	return f.entries, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveCandlesWritesJSONL(t *testing.T) {
	candles := &fakeCandleSource{candles: []domain.Candle{
		{Timestamp: 1700000000, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1200},
		{Timestamp: 1700000300, Open: 10.5, High: 10.7, Low: 10.2, Close: 10.4, Volume: 800},
	}}
	writer := newFakeBlobWriter()
	arch := NewArchiver(writer, candles, &fakeAuditSource{}, discardLogger())

	cutoff := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveCandles(context.Background(), "AAPL", cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, cutoff, candles.gotTo)

	body, ok := writer.puts["archive/candles/AAPL/2026-07.jsonl"]
	require.True(t, ok, "expected upload under year-month key, got %v", writer.puts)

	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"t":1700000000`)
}

func TestArchiveCandlesEmptySkipsUpload(t *testing.T) {
	writer := newFakeBlobWriter()
	arch := NewArchiver(writer, &fakeCandleSource{}, &fakeAuditSource{}, discardLogger())

	n, err := arch.ArchiveCandles(context.Background(), "AAPL", time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.puts)
}

func TestArchiveAuditLog(t *testing.T) {
	audit := &fakeAuditSource{entries: []domain.AuditEntry{
		{Symbol: "MSFT", Action: domain.ActionBuy, Quantity: 5, Reasons: []string{"signal strength 0.8"}},
	}}
	writer := newFakeBlobWriter()
	arch := NewArchiver(writer, &fakeCandleSource{}, audit, discardLogger())

	cutoff := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveAuditLog(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	body, ok := writer.puts["archive/audit_log/2026-06.jsonl"]
	require.True(t, ok)
	assert.Contains(t, body, `"MSFT"`)
}
