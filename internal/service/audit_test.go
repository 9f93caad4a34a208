package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalverson/predbot/internal/domain"
)

type capturingStateCache struct {
	domain.StateCache
	published [][]domain.AuditEntry
}

func (c *capturingStateCache) PublishActions(_ context.Context, entries []domain.AuditEntry) error {
	c.published = append(c.published, entries)
	return nil
}

type capturingAuditStore struct {
	domain.AuditStore
	appended []domain.AuditEntry
}

func (s *capturingAuditStore) Append(_ context.Context, e domain.AuditEntry) error {
	s.appended = append(s.appended, e)
	return nil
}

func TestAuditRecorderKeepsLastHundred(t *testing.T) {
	rec := NewAuditRecorder(nil, nil, discardLogger())

	for i := 0; i < domain.AuditRingSize+25; i++ {
		rec.Record(context.Background(), domain.AuditEntry{
			Timestamp: time.Unix(int64(i), 0),
			Symbol:    fmt.Sprintf("SYM%d", i),
			Action:    domain.ActionHold,
		})
	}

	ring := rec.Ring()
	require.Len(t, ring, domain.AuditRingSize)

	// Oldest entries were evicted; newest is last.
	assert.Equal(t, "SYM25", ring[0].Symbol)
	assert.Equal(t, fmt.Sprintf("SYM%d", domain.AuditRingSize+24), ring[len(ring)-1].Symbol)
}

func TestAuditRecorderFansOut(t *testing.T) {
	cache := &capturingStateCache{}
	store := &capturingAuditStore{}
	rec := NewAuditRecorder(cache, store, discardLogger())

	entry := domain.AuditEntry{Symbol: "AAPL", Action: domain.ActionBuy, Quantity: 3}
	rec.Record(context.Background(), entry)

	require.Len(t, store.appended, 1)
	assert.Equal(t, "AAPL", store.appended[0].Symbol)

	require.Len(t, cache.published, 1)
	require.Len(t, cache.published[0], 1)
	assert.Equal(t, domain.ActionBuy, cache.published[0][0].Action)
}

func TestAuditRecorderRingIsACopy(t *testing.T) {
	rec := NewAuditRecorder(nil, nil, discardLogger())
	rec.Record(context.Background(), domain.AuditEntry{Symbol: "NVDA"})

	ring := rec.Ring()
	ring[0].Symbol = "mutated"

	assert.Equal(t, "NVDA", rec.Ring()[0].Symbol)
}
