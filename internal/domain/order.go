package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderRequest is a limit order handed to an ExecutionGateway.
type OrderRequest struct {
	OutcomeID string
	Side      OrderSide
	Price     float64
	Size      float64 // shares
	// Maker requests a resting order; otherwise the order may take liquidity.
	Maker    bool
	Strategy string
}

// OrderResult is returned by PlaceLimitOrder. Placement failures are
// reported through Success=false and Error, never as a Go error.
type OrderResult struct {
	Success  bool
	OrderID  string
	Status   OrderStatus
	Filled   float64 // shares filled at placement time
	AvgPrice float64
	Error    string
	PlacedAt time.Time
}

// FillStatus is the polled state of a resting order.
type FillStatus struct {
	OrderID      string
	FilledAmount float64
	AvgPrice     float64
	Status       OrderStatus
}
