package domain

import "time"

// Action is the directional decision derived from a prediction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is a derived trading signal for one evaluation cycle. It is
// ephemeral: signals are recomputed every cycle and never persisted.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Strength  float64   `json:"strength"` // normalized to [0,1]

	// Confidence carries the originating prediction's confidence through to
	// the audit trail.
	Confidence float64 `json:"conf"`

	// Reason is a short human-readable explanation of how the signal was
	// derived (or why it degraded to HOLD).
	Reason string `json:"reason,omitempty"`
}

// Decision is the risk gate's verdict on a candidate signal.
type Decision struct {
	Admitted bool
	Reason   string
}

// ExitReason identifies which risk limit forced a position exit.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitMaxHolding ExitReason = "max_holding_period"
)
