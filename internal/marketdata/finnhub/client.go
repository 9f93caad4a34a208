// Package finnhub is the Finnhub market data adapter behind domain.MarketData.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jalverson/predbot/internal/domain"
)

// BaseURL is the Finnhub REST API root.
const BaseURL = "https://finnhub.io/api/v1"

// Finnhub's free tier allows 60 requests per minute.
const (
	rateLimitKey    = "finnhub"
	rateLimitMax    = 60
	rateLimitWindow = time.Minute
)

// Client is the REST client for the Finnhub market data API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    domain.RateLimiter // optional
}

// NewClient creates a new Finnhub REST client. baseURL falls back to the
// public endpoint when empty.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// WithRateLimiter makes every API call wait on the shared request budget
// before hitting the wire.
func (c *Client) WithRateLimiter(rl domain.RateLimiter) *Client {
	c.limiter = rl
	return c
}

type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
}

type candleResponse struct {
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Times  []int64   `json:"t"`
	Volume []float64 `json:"v"`
	Status string    `json:"s"`
}

// GetQuote returns the current quote for a symbol. Finnhub reports all-zero
// quotes for unknown symbols, which map to domain.ErrNotFound.
func (c *Client) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, "/quote", params)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub: get quote %s: %w", symbol, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub: decode quote: %w", err)
	}
	if resp.Current == 0 && resp.PrevClose == 0 {
		return domain.Quote{}, fmt.Errorf("finnhub: quote %s: %w", symbol, domain.ErrNotFound)
	}

	return domain.Quote{
		Symbol:        symbol,
		Price:         resp.Current,
		Change:        resp.Change,
		ChangePercent: resp.ChangePercent,
	}, nil
}

// GetCandles returns up to count bars at the given resolution (minutes),
// oldest to newest. A "no_data" response yields an empty slice, not an error.
func (c *Client) GetCandles(ctx context.Context, symbol string, resolution string, count int) ([]domain.Candle, error) {
	step, err := resolutionStep(resolution)
	if err != nil {
		return nil, fmt.Errorf("finnhub: get candles %s: %w", symbol, err)
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(count) * step)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	body, err := c.doRequest(ctx, "/stock/candle", params)
	if err != nil {
		return nil, fmt.Errorf("finnhub: get candles %s: %w", symbol, err)
	}

	var resp candleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("finnhub: decode candles: %w", err)
	}
	if resp.Status == "no_data" {
		return []domain.Candle{}, nil
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("finnhub: get candles %s: status %q", symbol, resp.Status)
	}

	n := len(resp.Times)
	if len(resp.Open) != n || len(resp.High) != n || len(resp.Low) != n ||
		len(resp.Close) != n || len(resp.Volume) != n {
		return nil, fmt.Errorf("finnhub: get candles %s: ragged series", symbol)
	}

	candles := make([]domain.Candle, 0, n)
	for i := 0; i < n; i++ {
		candles = append(candles, domain.Candle{
			Timestamp: resp.Times[i],
			Open:      resp.Open[i],
			High:      resp.High[i],
			Low:       resp.Low[i],
			Close:     resp.Close[i],
			Volume:    int64(resp.Volume[i]),
		})
	}
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

func resolutionStep(resolution string) (time.Duration, error) {
	minutes, err := strconv.Atoi(resolution)
	if err != nil || minutes <= 0 {
		return 0, fmt.Errorf("unsupported resolution %q: %w", resolution, domain.ErrInvalidInput)
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey, rateLimitMax, rateLimitWindow); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	params.Set("token", c.apiKey)
	fullURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Compile-time interface check.
var _ domain.MarketData = (*Client)(nil)
