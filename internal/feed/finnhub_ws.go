// Package feed streams real-time trades into the shared market cache.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jalverson/predbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// flushInterval batches trade ticks before writing to the cache, so a
	// busy symbol does not turn every tick into a cache round trip.
	flushInterval = 2 * time.Second
)

// DefaultWSURL is the Finnhub real-time trades endpoint. The API token is
// appended as a query parameter.
const DefaultWSURL = "wss://ws.finnhub.io"

// wsMessage is the envelope Finnhub sends for every event type.
type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

type wsTrade struct {
	Symbol string  `json:"s"`
	Price  float64 `json:"p"`
	Volume float64 `json:"v"`
	TimeMS int64   `json:"t"`
}

type wsSubscribe struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// FinnhubWSFeed connects to the Finnhub trade WebSocket, subscribes to the
// given symbols, and folds incoming trades into the market cache so the
// dashboard and decision loop see fresh prices between REST refreshes. It
// reconnects with exponential backoff on disconnect.
type FinnhubWSFeed struct {
	wsURL   string
	token   string
	symbols []string
	market  domain.MarketCache
	logger  *slog.Logger

	mu     sync.Mutex
	latest map[string]domain.Quote // pending ticks, flushed on a timer

	closeOnce sync.Once
	done      chan struct{}
}

// NewFinnhubWSFeed creates a feed for the given symbols. wsURL falls back to
// the public endpoint when empty.
func NewFinnhubWSFeed(wsURL, token string, symbols []string, market domain.MarketCache, logger *slog.Logger) *FinnhubWSFeed {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &FinnhubWSFeed{
		wsURL:   wsURL,
		token:   token,
		symbols: symbols,
		market:  market,
		logger:  logger.With(slog.String("component", "finnhub_ws_feed")),
		latest:  make(map[string]domain.Quote),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes, and runs until ctx is cancelled, reconnecting
// with backoff on disconnect.
func (f *FinnhubWSFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	go f.flushLoop(ctx)

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("finnhub ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the feed.
func (f *FinnhubWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *FinnhubWSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL+"?token="+f.token, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for _, sym := range f.symbols {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(wsSubscribe{Type: "subscribe", Symbol: sym}); err != nil {
			return fmt.Errorf("feed: subscribe %s: %w", sym, err)
		}
	}
	f.logger.Info("finnhub ws subscribed", slog.Int("symbols", len(f.symbols)))

	go f.pingLoop(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.logger.Debug("finnhub ws bad message", slog.Int("payload_len", len(raw)))
			continue
		}
		if msg.Type != "trade" {
			continue
		}

		f.mu.Lock()
		for _, t := range msg.Data {
			if t.Symbol == "" || t.Price <= 0 {
				continue
			}
			f.latest[t.Symbol] = domain.Quote{Symbol: t.Symbol, Price: t.Price}
		}
		f.mu.Unlock()
	}
}

func (f *FinnhubWSFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flushLoop drains the pending tick map into the market cache on a timer.
func (f *FinnhubWSFeed) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.Lock()
			if len(f.latest) == 0 {
				f.mu.Unlock()
				continue
			}
			pending := f.latest
			f.latest = make(map[string]domain.Quote)
			f.mu.Unlock()

			if err := f.market.SetQuotes(ctx, pending); err != nil {
				f.logger.Warn("quote flush failed",
					slog.Int("quotes", len(pending)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
