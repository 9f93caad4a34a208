package domain

import "time"

// AuditRingSize bounds the operator-visible action ring published to the
// shared cache. Older entries fall off; the full history lives in Postgres.
const AuditRingSize = 100

// AuditEntry is one immutable record of a decision cycle outcome for a
// symbol. Every evaluated symbol produces exactly one entry per cycle,
// whether the decision was admitted and filled, admitted and failed, or
// rejected. OrderID is empty when no order reached the broker.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Quantity   float64   `json:"quantity"`
	Confidence float64   `json:"confidence"`
	Strength   float64   `json:"strength"`
	Reasons    []string  `json:"reasons"`
	OrderID    string    `json:"order_id"`
}
