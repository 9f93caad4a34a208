package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalverson/predbot/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestGetQuote(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		w.Write([]byte(`{"c":189.5,"d":2.1,"dp":1.12,"h":190.0,"l":187.2,"o":188.0,"pc":187.4}`))
	})

	c := NewClient(ts.URL, "tok")
	q, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 189.5, q.Price)
	assert.Equal(t, 2.1, q.Change)
	assert.Equal(t, 1.12, q.ChangePercent)
}

func TestGetQuoteUnknownSymbol(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c":0,"d":0,"dp":0,"h":0,"l":0,"o":0,"pc":0}`))
	})

	c := NewClient(ts.URL, "tok")
	_, err := c.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetCandles(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("resolution"))
		require.NotEmpty(t, r.URL.Query().Get("from"))
		require.NotEmpty(t, r.URL.Query().Get("to"))
		w.Write([]byte(`{
			"s": "ok",
			"t": [1700000000, 1700000300, 1700000600],
			"o": [10.0, 10.5, 10.4],
			"h": [10.6, 10.7, 10.8],
			"l": [9.9, 10.3, 10.2],
			"c": [10.5, 10.4, 10.7],
			"v": [1200, 900, 1500]
		}`))
	})

	c := NewClient(ts.URL, "tok")
	candles, err := c.GetCandles(context.Background(), "AAPL", "5", 288)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, int64(1700000000), candles[0].Timestamp)
	assert.Equal(t, 10.5, candles[0].Close)
	assert.Equal(t, int64(1500), candles[2].Volume)
}

func TestGetCandlesNoDataIsEmpty(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"no_data"}`))
	})

	c := NewClient(ts.URL, "tok")
	candles, err := c.GetCandles(context.Background(), "AAPL", "5", 10)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestGetCandlesRaggedSeries(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"ok","t":[1,2],"o":[1.0],"h":[1.0],"l":[1.0],"c":[1.0],"v":[1]}`))
	})

	c := NewClient(ts.URL, "tok")
	_, err := c.GetCandles(context.Background(), "AAPL", "5", 10)
	assert.ErrorContains(t, err, "ragged")
}

func TestGetCandlesTrimsToCount(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"s": "ok",
			"t": [1, 2, 3, 4],
			"o": [1, 2, 3, 4],
			"h": [1, 2, 3, 4],
			"l": [1, 2, 3, 4],
			"c": [1, 2, 3, 4],
			"v": [1, 2, 3, 4]
		}`))
	})

	c := NewClient(ts.URL, "tok")
	candles, err := c.GetCandles(context.Background(), "AAPL", "5", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// Newest bars survive the trim.
	assert.Equal(t, int64(3), candles[0].Timestamp)
	assert.Equal(t, int64(4), candles[1].Timestamp)
}

func TestResolutionStep(t *testing.T) {
	step, err := resolutionStep("15")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, step)

	_, err = resolutionStep("D")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRateLimitedResponse(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := NewClient(ts.URL, "tok")
	_, err := c.GetQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
