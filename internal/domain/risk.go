package domain

import (
	"fmt"
	"time"
)

// RiskConfig holds the operator-tunable risk limits for the decision engine.
// It is hot-reloaded from the shared cache (key "bot_config") between
// decision cycles; within one cycle the engine works against a single
// immutable snapshot, never a partially updated one.
//
// The JSON field names are the wire contract with the dashboard.
type RiskConfig struct {
	Aggressiveness      float64  `json:"aggressiveness"`    // in [0,1]
	MaxPositionFraction float64  `json:"max_position_size"` // fraction of portfolio value, in (0,1]
	MaxHoldingDays      int      `json:"max_holding_days"`
	MinConfidence       float64  `json:"min_confidence"` // in [0,1]
	StopLoss            float64  `json:"stop_loss"`      // loss fraction, in (0,1]
	TakeProfit          float64  `json:"take_profit"`    // gain fraction, in (0,1]
	TradeFrequency      string   `json:"trade_frequency"` // "1min" | "5min" | "15min"
	Enabled             bool     `json:"enabled"`
	AllowedSymbols      []string `json:"allowed_symbols"`
}

// DefaultRiskConfig mirrors the defaults applied when the shared cache holds
// no bot_config yet.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Aggressiveness:      0.5,
		MaxPositionFraction: 0.20,
		MaxHoldingDays:      7,
		MinConfidence:       0.7,
		StopLoss:            0.05,
		TakeProfit:          0.15,
		TradeFrequency:      "5min",
		Enabled:             true,
		AllowedSymbols:      []string{"AAPL", "NVDA", "MSFT", "TSLA", "AMZN", "META", "GOOGL"},
	}
}

// MaxHoldingPeriod returns the holding-period cap as a duration.
func (c RiskConfig) MaxHoldingPeriod() time.Duration {
	return time.Duration(c.MaxHoldingDays) * 24 * time.Hour
}

// Interval maps the configured trade frequency onto the decision loop tick
// interval. Unknown values fall back to five minutes.
func (c RiskConfig) Interval() time.Duration {
	switch c.TradeFrequency {
	case "1min":
		return time.Minute
	case "15min":
		return 15 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// Allows reports whether trading is permitted for the given symbol.
func (c RiskConfig) Allows(symbol string) bool {
	for _, s := range c.AllowedSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Validate checks that all limits are inside their documented ranges.
func (c RiskConfig) Validate() error {
	if c.Aggressiveness < 0 || c.Aggressiveness > 1 {
		return fmt.Errorf("risk config: aggressiveness %.3f outside [0,1]", c.Aggressiveness)
	}
	if c.MaxPositionFraction <= 0 || c.MaxPositionFraction > 1 {
		return fmt.Errorf("risk config: max_position_size %.3f outside (0,1]", c.MaxPositionFraction)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("risk config: min_confidence %.3f outside [0,1]", c.MinConfidence)
	}
	if c.StopLoss <= 0 || c.StopLoss > 1 {
		return fmt.Errorf("risk config: stop_loss %.3f outside (0,1]", c.StopLoss)
	}
	if c.TakeProfit <= 0 || c.TakeProfit > 1 {
		return fmt.Errorf("risk config: take_profit %.3f outside (0,1]", c.TakeProfit)
	}
	if c.MaxHoldingDays <= 0 {
		return fmt.Errorf("risk config: max_holding_days %d must be positive", c.MaxHoldingDays)
	}
	return nil
}
