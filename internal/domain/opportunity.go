package domain

import "time"

// Verdict is the outcome of evaluating an opportunity.
type Verdict string

const (
	VerdictTaken   Verdict = "TAKEN"
	VerdictSkipped Verdict = "SKIPPED"
)

// Skip reasons shared across strategies. Strategy-specific reasons are plain
// strings on the Opportunity.
const (
	ReasonBelowThreshold      = "below_threshold"
	ReasonNoTier              = "no_tier"
	ReasonLowLiquidity        = "low_liquidity"
	ReasonMaxPositions        = "max_positions"
	ReasonInsufficientCash    = "insufficient_cash"
	ReasonDuplicateInstrument = "duplicate_instrument"
	ReasonExecutionFailed     = "execution_failed"
	ReasonRiskHalt            = "risk_halt"
)

// LegOrder is one order the strategy wants placed to realize an opportunity.
type LegOrder struct {
	OutcomeID   string
	OutcomeName string
	Side        OrderSide
	Price       float64
	Quantity    float64
	Maker       bool
}

// Opportunity is an evaluated candidate trade. It is treated as immutable;
// Skip and Take return modified copies.
type Opportunity struct {
	Strategy       string
	InstrumentID   string
	Slug           string
	Question       string
	Edge           float64
	Size           float64 // committed dollars
	Legs           []LegOrder
	ExpectedPayout float64
	ExpectedPnL    float64
	Confidence     float64
	EndTime        time.Time
	Verdict        Verdict
	Reason         string
	CreatedAt      time.Time
	Meta           map[string]any
}

// Skip returns a copy of o marked SKIPPED with the given reason.
func (o Opportunity) Skip(reason string) Opportunity {
	o.Verdict = VerdictSkipped
	o.Reason = reason
	return o
}

// Take returns a copy of o marked TAKEN.
func (o Opportunity) Take() Opportunity {
	o.Verdict = VerdictTaken
	o.Reason = ""
	return o
}

// Taken reports whether the opportunity is actionable.
func (o Opportunity) Taken() bool { return o.Verdict == VerdictTaken }

// Price returns the limit price of the first leg, or 0.
func (o Opportunity) Price() float64 {
	if len(o.Legs) == 0 {
		return 0
	}
	return o.Legs[0].Price
}

// Cost is the capital the legs commit at their limit prices.
func (o Opportunity) Cost() float64 {
	var c float64
	for _, lo := range o.Legs {
		c += lo.Price * lo.Quantity
	}
	return c
}
