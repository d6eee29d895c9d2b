package strategy

import (
	"context"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// Strategy is one trading algorithm driven by a Loop. Implementations own
// their market data and evaluator state; the Loop owns capital.
type Strategy interface {
	Name() string
	Params() Params
	// Refresh pulls this cycle's market data. Transient fetch failures are
	// absorbed by the sources; an error here is unexpected and triggers the
	// loop's error backoff.
	Refresh(ctx context.Context, now time.Time) error
	// Exits inspects OPEN positions and returns the ones to close or settle.
	Exits(ctx context.Context, book Book, now time.Time) []Exit
	// Entries returns evaluated opportunities, TAKEN and SKIPPED alike, in
	// the order they should be acted on.
	Entries(ctx context.Context, book Book, now time.Time) []domain.Opportunity
}

// ExitObserver is implemented by strategies that react to realized exits.
type ExitObserver interface {
	OnExit(pos domain.Position, now time.Time)
}

// Book is the read-only ledger view handed to strategies.
type Book interface {
	Portfolio() domain.Portfolio
	OpenPositions() []domain.Position
	OpenCount() int
	HasOpen(instrumentID string) bool
	Exposure(instrumentID string) float64
	RealizedToday() float64
}

// ExitKind selects how an Exit is realized.
type ExitKind int

const (
	// ExitClose sells the position at Price through the gateway.
	ExitClose ExitKind = iota
	// ExitSettle pays the position out against WinningOutcome.
	ExitSettle
)

// Exit is a strategy's instruction to terminate a position.
type Exit struct {
	PositionID     string
	Kind           ExitKind
	Price          float64
	Reason         string
	WinningOutcome string
}

// Params are the per-strategy knobs the Loop enforces.
type Params struct {
	StartingCapital float64
	PollInterval    time.Duration
	// ErrorBackoff multiplies PollInterval after a failed cycle.
	ErrorBackoff      int
	MaxPositions      int
	MinCash           float64
	MaxDailyLoss      float64
	SnapshotInterval  time.Duration
	BroadcastInterval time.Duration
}

// withDefaults fills zero values.
func (p Params) withDefaults() Params {
	if p.PollInterval <= 0 {
		p.PollInterval = 5 * time.Second
	}
	if p.ErrorBackoff <= 0 {
		p.ErrorBackoff = 3
	}
	if p.SnapshotInterval <= 0 {
		p.SnapshotInterval = time.Minute
	}
	if p.BroadcastInterval <= 0 {
		p.BroadcastInterval = 10 * time.Second
	}
	return p
}
