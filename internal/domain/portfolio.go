package domain

import (
	"math"
	"time"
)

// Portfolio is a strategy's capital account.
type Portfolio struct {
	Strategy        string
	StartingCapital float64
	Cash            float64
	Locked          float64
	RealizedPnL     float64
}

// Equity is cash plus capital locked in open positions, valued at cost.
func (p Portfolio) Equity() float64 { return p.Cash + p.Locked }

// Balanced checks cash + locked == starting + realized within tol.
func (p Portfolio) Balanced(tol float64) bool {
	return math.Abs(p.Cash+p.Locked-(p.StartingCapital+p.RealizedPnL)) <= tol
}

// PortfolioSnapshot is a periodic observation of a Portfolio.
type PortfolioSnapshot struct {
	Strategy       string    `json:"strategy"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalValue     float64   `json:"total_value"`
	RealizedPnL    float64   `json:"realized_pnl"`
	OpenPositions  int       `json:"open_positions"`
	Timestamp      time.Time `json:"timestamp"`
}
