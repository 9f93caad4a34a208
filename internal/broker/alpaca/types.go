package alpaca

import (
	"strconv"
	"time"
)

// Alpaca returns most numeric fields as JSON strings. numstr parses them,
// treating empty and null values as zero.
type numstr string

func (n numstr) Float() float64 {
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}

type accountResponse struct {
	BuyingPower    numstr `json:"buying_power"`
	PortfolioValue numstr `json:"portfolio_value"`
	Cash           numstr `json:"cash"`
	Equity         numstr `json:"equity"`
	Status         string `json:"status"`
}

type positionResponse struct {
	Symbol         string `json:"symbol"`
	Qty            numstr `json:"qty"`
	AvgEntryPrice  numstr `json:"avg_entry_price"`
	MarketValue    numstr `json:"market_value"`
	UnrealizedPL   numstr `json:"unrealized_pl"`
	UnrealizedPLPC numstr `json:"unrealized_plpc"`
}

type orderPayload struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type orderResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledQty      numstr `json:"filled_qty"`
	FilledAvgPrice numstr `json:"filled_avg_price"`
}

type latestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		Price     float64   `json:"p"`
		Timestamp time.Time `json:"t"`
	} `json:"trade"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
