package domain

import "time"

// Position is the authoritative record of an open holding in one symbol.
// There is at most one Position per symbol; it is created on the first fill,
// its average entry price is recomputed atomically on subsequent fills, and
// it is deleted outright when the quantity reaches zero.
//
// Quantity is signed: positive is long. The JSON field names are the wire
// contract for the "bot_positions" cache key.
type Position struct {
	Symbol         string    `json:"symbol"`
	Quantity       float64   `json:"qty"`
	AvgEntryPrice  float64   `json:"avg_entry_price"`
	MarketValue    float64   `json:"market_value"`
	UnrealizedPL   float64   `json:"unrealized_pl"`
	UnrealizedPLPC float64   `json:"unrealized_plpc"` // fraction of entry, e.g. -0.05
	EntryTime      time.Time `json:"entry_time"`
}

// UnrealizedFraction returns the profit/loss fraction at the given price
// relative to the average entry price. Zero when there is no entry price.
func (p Position) UnrealizedFraction(price float64) float64 {
	if p.AvgEntryPrice == 0 {
		return 0
	}
	return (price - p.AvgEntryPrice) / p.AvgEntryPrice
}

// HeldFor returns how long the position has been open.
func (p Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// AccountSnapshot is a read-only view of the brokerage account, refreshed
// once per decision cycle and never mutated mid-cycle.
type AccountSnapshot struct {
	BuyingPower    float64 `json:"buying_power"`
	PortfolioValue float64 `json:"portfolio_value"`
	Cash           float64 `json:"cash"`
	Equity         float64 `json:"equity"`
}
