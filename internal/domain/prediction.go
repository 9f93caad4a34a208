package domain

import "time"

// PredictionPoint is a single model output for a symbol: the predicted price
// at some future horizon plus the model's confidence in it. Points are
// produced by the external ML worker on a fixed 5-minute cadence and are
// immutable once written.
type PredictionPoint struct {
	Symbol     string  `json:"symbol,omitempty"`
	Timestamp  int64   `json:"t"` // epoch seconds
	Value      float64 `json:"value"`
	Confidence float64 `json:"conf"` // in [0,1]
}

// Time returns the prediction timestamp as a time.Time.
func (p PredictionPoint) Time() time.Time {
	return time.Unix(p.Timestamp, 0).UTC()
}

// Age returns how old the prediction is relative to now.
func (p PredictionPoint) Age(now time.Time) time.Duration {
	return now.Sub(p.Time())
}
