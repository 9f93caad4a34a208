package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Side maps a directional action onto an order side. ActionHold has no side.
func (a Action) Side() OrderSide {
	if a == ActionSell {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus tracks the broker-side order lifecycle.
type OrderStatus string

const (
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusFailed          OrderStatus = "failed"
)

// Terminal reports whether the order has reached a final state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusRejected, OrderStatusFilled, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// OrderRequest is a market order submitted to the broker. Quantity is always
// positive and may be fractional, since brokers reconcile fractional
// positions in; direction is carried by Side.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Quantity      float64
	Type          string // always "market"
	TimeInForce   string // always "day"
	ClientOrderID string // uuid, lets a resubmission after timeout dedupe broker-side
}

// OrderResult is the broker's response for a submitted order, possibly after
// a fill-status poll.
type OrderResult struct {
	OrderID        string
	FilledQuantity float64
	AvgFillPrice   float64
	Status         OrderStatus
}
