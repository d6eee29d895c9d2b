package domain

import "time"

// PositionStatus is the lifecycle state of a position.
//
//	PENDING -> OPEN -> { CLOSED | SETTLED }
type PositionStatus string

const (
	PositionStatusPending PositionStatus = "PENDING"
	PositionStatusOpen    PositionStatus = "OPEN"
	PositionStatusClosed  PositionStatus = "CLOSED"
	PositionStatusSettled PositionStatus = "SETTLED"
)

// Terminal reports whether no further transition is possible.
func (s PositionStatus) Terminal() bool {
	return s == PositionStatusClosed || s == PositionStatusSettled
}

// Exit reasons for CLOSED positions.
const (
	ExitProfitTarget = "PROFIT_TARGET"
	ExitStopLoss     = "STOP_LOSS"
	ExitSettlement   = "SETTLEMENT"
	ExitResolved     = "RESOLVED"
)

// Leg is one outcome held by a position. Quantity is the ordered size and
// Filled how much of it has executed; they are equal for taker fills.
type Leg struct {
	OutcomeID   string
	OutcomeName string
	EntryPrice  float64
	Quantity    float64
	Filled      float64
	OrderID     string
}

// Cost is the capital reserved for the leg.
func (l Leg) Cost() float64 { return l.EntryPrice * l.Quantity }

// Unfilled is the reserved quantity that has not executed.
func (l Leg) Unfilled() float64 {
	if l.Filled >= l.Quantity {
		return 0
	}
	return l.Quantity - l.Filled
}

// PositionSpec is what a strategy hands the ledger to open a position.
type PositionSpec struct {
	Strategy       string
	InstrumentID   string
	Slug           string
	Legs           []Leg
	ExpectedPayout float64
	ExpectedPnL    float64
	EndTime        time.Time
}

// Position is an open or historical position.
type Position struct {
	ID             string
	Strategy       string
	InstrumentID   string
	Slug           string
	Legs           []Leg
	Cost           float64
	ExpectedPayout float64
	ExpectedPnL    float64
	Status         PositionStatus
	EndTime        time.Time
	CreatedAt      time.Time
	ClosedAt       *time.Time
	ExitPrice      float64
	ExitReason     string
	RealizedPnL    float64
}

// FilledQuantity sums filled shares over all legs.
func (p Position) FilledQuantity() float64 {
	var q float64
	for _, l := range p.Legs {
		q += l.Filled
	}
	return q
}

// HasUnfilled reports whether any leg still has a resting remainder.
func (p Position) HasUnfilled() bool {
	for _, l := range p.Legs {
		if l.Unfilled() > 0 {
			return true
		}
	}
	return false
}
