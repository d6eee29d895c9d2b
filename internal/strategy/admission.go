package strategy

import "github.com/alanyoungcy/polystrat/internal/domain"

// Admission gates new entries. It never queues or retries: a rejected
// opportunity is recorded as SKIPPED and forgotten.
type Admission struct {
	MaxPositions int
	MinCash      float64
	// MaxDailyLoss halts entries once today's realized loss reaches it.
	// Zero disables the check.
	MaxDailyLoss float64
}

// Check returns the skip reason for an entry on instrumentID, or "" when the
// entry may proceed.
func (a Admission) Check(book Book, instrumentID string) string {
	if a.MaxPositions > 0 && book.OpenCount() >= a.MaxPositions {
		return domain.ReasonMaxPositions
	}
	if book.Portfolio().Cash < a.MinCash {
		return domain.ReasonInsufficientCash
	}
	if book.HasOpen(instrumentID) {
		return domain.ReasonDuplicateInstrument
	}
	if a.MaxDailyLoss > 0 && book.RealizedToday() <= -a.MaxDailyLoss {
		return domain.ReasonRiskHalt
	}
	return ""
}
