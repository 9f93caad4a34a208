package domain

// Quote is the latest traded price for a symbol plus its day change.
type Quote struct {
	Symbol        string  `json:"symbol,omitempty"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// Candle is a single OHLCV bar. The wire field names match the shared-cache
// contract consumed by the dashboard ("t,o,h,l,c,v", oldest to newest).
type Candle struct {
	Timestamp int64   `json:"t"` // epoch seconds, bar open time
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    int64   `json:"v"`
}
