// Package alpaca is the Alpaca brokerage adapter behind domain.Broker.
package alpaca

import (
	"bytes"
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

// Default API roots. The paper endpoint is used unless the operator opts in
// to live trading explicitly.
const (
	PaperTradeURL = "https://paper-api.alpaca.markets"
	LiveTradeURL  = "https://api.alpaca.markets"
	DataURL       = "https://data.alpaca.markets"
)

// All REST calls share one rate-limit bucket. Alpaca allows 200 requests
// per minute per account.
const (
	rateLimitKey    = "alpaca"
	rateLimitMax    = 200
	rateLimitWindow = time.Minute
)

// Client is the REST client for the Alpaca trading and market data APIs.
type Client struct {
	tradeURL   string
	dataURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    domain.RateLimiter // optional
}

// NewClient creates a new Alpaca REST client. tradeURL and dataURL fall back
// to the paper and data defaults when empty.
func NewClient(tradeURL, dataURL, apiKey, apiSecret string) *Client {
	if tradeURL == "" {
		tradeURL = PaperTradeURL
	}
	if dataURL == "" {
		dataURL = DataURL
	}
	return &Client{
		tradeURL:  tradeURL,
		dataURL:   dataURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithRateLimiter makes every API call wait on the shared request budget
// before hitting the wire. Useful when several bot instances share one
// Alpaca account.
func (c *Client) WithRateLimiter(rl domain.RateLimiter) *Client {
	c.limiter = rl
	return c
}

// GetAccount returns the current account snapshot.
func (c *Client) GetAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.tradeURL+"/v2/account", nil)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("alpaca: get account: %w", err)
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("alpaca: decode account: %w", err)
	}

	return domain.AccountSnapshot{
		BuyingPower:    resp.BuyingPower.Float(),
		PortfolioValue: resp.PortfolioValue.Float(),
		Cash:           resp.Cash.Float(),
		Equity:         resp.Equity.Float(),
	}, nil
}

// ListPositions returns all open positions.
func (c *Client) ListPositions(ctx context.Context) ([]domain.Position, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.tradeURL+"/v2/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca: list positions: %w", err)
	}

	var resp []positionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("alpaca: decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(resp))
	for _, p := range resp {
		positions = append(positions, domain.Position{
			Symbol:         p.Symbol,
			Quantity:       p.Qty.Float(),
			AvgEntryPrice:  p.AvgEntryPrice.Float(),
			MarketValue:    p.MarketValue.Float(),
			UnrealizedPL:   p.UnrealizedPL.Float(),
			UnrealizedPLPC: p.UnrealizedPLPC.Float(),
		})
	}
	return positions, nil
}

// SubmitOrder places a market order. The broker dedupes on ClientOrderID, so
// resubmitting after a timeout cannot double-fill.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	payload := orderPayload{
		Symbol:        req.Symbol,
		Qty:           strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		Side:          string(req.Side),
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
	}
	if payload.Type == "" {
		payload.Type = "market"
	}
	if payload.TimeInForce == "" {
		payload.TimeInForce = "day"
	}

	body, err := c.doRequest(ctx, http.MethodPost, c.tradeURL+"/v2/orders", payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("alpaca: submit order %s: %w", req.Symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("alpaca: decode order: %w", err)
	}
	return toOrderResult(resp), nil
}

// GetOrder returns the current state of an order by broker order ID.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.OrderResult, error) {
	u := c.tradeURL + "/v2/orders/" + url.PathEscape(orderID)

	body, err := c.doRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("alpaca: get order %s: %w", orderID, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("alpaca: decode order: %w", err)
	}
	return toOrderResult(resp), nil
}

// GetLatestQuote returns the most recent trade price for a symbol.
func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	u := c.dataURL + "/v2/stocks/" + url.PathEscape(symbol) + "/trades/latest"

	body, err := c.doRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("alpaca: latest quote %s: %w", symbol, err)
	}

	var resp latestTradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("alpaca: decode latest trade: %w", err)
	}
	if resp.Trade.Price <= 0 {
		return domain.Quote{}, fmt.Errorf("alpaca: latest quote %s: %w", symbol, domain.ErrNotFound)
	}

	return domain.Quote{
		Symbol: symbol,
		Price:  resp.Trade.Price,
	}, nil
}

// toOrderResult maps Alpaca's order lifecycle states onto the domain
// lifecycle. Anything cancelled or expired is treated as failed.
func toOrderResult(resp orderResponse) domain.OrderResult {
	var status domain.OrderStatus
	switch resp.Status {
	case "filled":
		status = domain.OrderStatusFilled
	case "partially_filled":
		status = domain.OrderStatusPartiallyFilled
	case "rejected":
		status = domain.OrderStatusRejected
	case "canceled", "expired", "done_for_day", "stopped":
		status = domain.OrderStatusFailed
	default:
		// new, accepted, pending_new and friends are all still in flight.
		status = domain.OrderStatusAccepted
	}

	return domain.OrderResult{
		OrderID:        resp.ID,
		FilledQuantity: resp.FilledQty.Float(),
		AvgFillPrice:   resp.FilledAvgPrice.Float(),
		Status:         status,
	}
}

// doRequest builds, sends, and reads an HTTP request against the Alpaca API.
func (c *Client) doRequest(ctx context.Context, method, fullURL string, reqBody any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey, rateLimitMax, rateLimitWindow); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s: %w", apiErr.Message, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s", apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrRateLimited)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", apiErr.Message)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Message)
	}
}

// Compile-time interface check.
var _ domain.Broker = (*Client)(nil)
