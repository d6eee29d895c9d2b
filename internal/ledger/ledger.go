// Package ledger owns a strategy's portfolio and positions. It is the only
// code allowed to move capital between cash, locked capital and realized P&L.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// ErrInvalidSpec is returned by Open for a spec that cannot describe a
// position (no legs, non-positive price or quantity).
var ErrInvalidSpec = errors.New("ledger: invalid position spec")

const (
	// epsilon absorbs float noise when comparing cash to a cost.
	epsilon = 1e-9

	historyCap  = 200
	historyKeep = 100
	closedKeep  = 100
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDFunc overrides position id generation.
func WithIDFunc(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// Ledger is a single strategy's book. It is not safe for concurrent use:
// the owning strategy loop is its only writer.
type Ledger struct {
	portfolio domain.Portfolio
	open      map[string]*domain.Position
	order     []string // open ids in creation order
	closed    []domain.Position
	history   []domain.PortfolioSnapshot

	day    time.Time
	dayPnL float64
	now    func() time.Time
	newID  func() string
}

// New creates a ledger holding startingCapital in cash.
func New(strategy string, startingCapital float64, opts ...Option) *Ledger {
	l := &Ledger{
		portfolio: domain.Portfolio{
			Strategy:        strategy,
			StartingCapital: startingCapital,
			Cash:            startingCapital,
		},
		open:  make(map[string]*domain.Position),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open commits capital for spec and returns the OPEN position. The whole
// cost is debited or nothing is.
func (l *Ledger) Open(spec domain.PositionSpec) (domain.Position, error) {
	if len(spec.Legs) == 0 {
		return domain.Position{}, fmt.Errorf("%w: no legs", ErrInvalidSpec)
	}
	var cost float64
	for i, leg := range spec.Legs {
		if leg.EntryPrice <= 0 || leg.Quantity <= 0 {
			return domain.Position{}, fmt.Errorf("%w: leg %d price=%.4f qty=%.4f",
				ErrInvalidSpec, i, leg.EntryPrice, leg.Quantity)
		}
		cost += leg.Cost()
	}
	if cost > l.portfolio.Cash+epsilon {
		return domain.Position{}, fmt.Errorf("ledger: open %s: cost %.2f cash %.2f: %w",
			spec.InstrumentID, cost, l.portfolio.Cash, domain.ErrInsufficientCapital)
	}

	legs := make([]domain.Leg, len(spec.Legs))
	copy(legs, spec.Legs)
	pos := &domain.Position{
		ID:             l.newID(),
		Strategy:       spec.Strategy,
		InstrumentID:   spec.InstrumentID,
		Slug:           spec.Slug,
		Legs:           legs,
		Cost:           cost,
		ExpectedPayout: spec.ExpectedPayout,
		ExpectedPnL:    spec.ExpectedPnL,
		Status:         domain.PositionStatusPending,
		EndTime:        spec.EndTime,
		CreatedAt:      l.now(),
	}

	l.portfolio.Cash -= cost
	l.portfolio.Locked += cost
	pos.Status = domain.PositionStatusOpen

	l.open[pos.ID] = pos
	l.order = append(l.order, pos.ID)
	return clone(pos), nil
}

// Close exits a single-leg OPEN position at exitPrice and returns the
// realized P&L. Any unfilled reservation is refunded at cost.
func (l *Ledger) Close(id string, exitPrice float64, reason string) (float64, error) {
	pos, ok := l.open[id]
	if !ok {
		return 0, fmt.Errorf("ledger: close %s: %w", id, domain.ErrUnknownPosition)
	}
	if len(pos.Legs) != 1 {
		return 0, fmt.Errorf("ledger: close %s: %d legs: %w", id, len(pos.Legs), domain.ErrInvalidExit)
	}
	if exitPrice < 0 {
		return 0, fmt.Errorf("ledger: close %s: price %.4f: %w", id, exitPrice, domain.ErrInvalidExit)
	}

	leg := pos.Legs[0]
	proceeds := leg.Filled*exitPrice + leg.Unfilled()*leg.EntryPrice
	realized := proceeds - pos.Cost

	pos.ExitPrice = exitPrice
	pos.ExitReason = reason
	l.finish(pos, domain.PositionStatusClosed, proceeds, realized)
	return realized, nil
}

// Reduce sells qty filled shares of a single-leg OPEN position at
// exitPrice, leaving the rest OPEN. It returns the P&L realized on the sold
// shares. Selling every filled share with nothing left reserved is a Close.
func (l *Ledger) Reduce(id string, qty, exitPrice float64, reason string) (float64, error) {
	pos, ok := l.open[id]
	if !ok {
		return 0, fmt.Errorf("ledger: reduce %s: %w", id, domain.ErrUnknownPosition)
	}
	if len(pos.Legs) != 1 {
		return 0, fmt.Errorf("ledger: reduce %s: %d legs: %w", id, len(pos.Legs), domain.ErrInvalidExit)
	}
	leg := &pos.Legs[0]
	if qty <= 0 || qty > leg.Filled+epsilon || exitPrice < 0 {
		return 0, fmt.Errorf("ledger: reduce %s: qty %.4f of %.4f at %.4f: %w",
			id, qty, leg.Filled, exitPrice, domain.ErrInvalidExit)
	}
	if qty >= leg.Filled-epsilon && leg.Unfilled() <= epsilon {
		return l.Close(id, exitPrice, reason)
	}
	qty = min(qty, leg.Filled)

	released := qty * leg.EntryPrice
	proceeds := qty * exitPrice
	realized := proceeds - released

	leg.Quantity -= qty
	leg.Filled -= qty
	pos.Cost -= released
	pos.RealizedPnL += realized

	l.portfolio.Locked -= released
	l.portfolio.Cash += proceeds
	l.portfolio.RealizedPnL += realized
	l.rollDay(l.now())
	l.dayPnL += realized
	return realized, nil
}

// Settle resolves an OPEN position against the winning outcome id. Filled
// shares of the winning outcome pay 1.0, all others 0.
func (l *Ledger) Settle(id string, winningOutcomeID string) (float64, error) {
	pos, ok := l.open[id]
	if !ok {
		return 0, fmt.Errorf("ledger: settle %s: %w", id, domain.ErrUnknownPosition)
	}

	var payout, refund, filled float64
	for _, leg := range pos.Legs {
		if leg.OutcomeID == winningOutcomeID {
			payout += leg.Filled
		}
		refund += leg.Unfilled() * leg.EntryPrice
		filled += leg.Filled
	}
	realized := payout + refund - pos.Cost

	if filled > 0 {
		pos.ExitPrice = payout / filled
	}
	pos.ExitReason = domain.ExitResolved
	l.finish(pos, domain.PositionStatusSettled, payout+refund, realized)
	return realized, nil
}

// ApplyFill records fill progress on a resting leg. filled is the cumulative
// filled quantity; stale (smaller) updates are ignored. A non-zero avgPrice
// revises the leg price and moves the cost difference between cash and
// locked capital.
func (l *Ledger) ApplyFill(id string, legIdx int, filled, avgPrice float64) error {
	pos, ok := l.open[id]
	if !ok {
		return fmt.Errorf("ledger: fill %s: %w", id, domain.ErrUnknownPosition)
	}
	if legIdx < 0 || legIdx >= len(pos.Legs) {
		return fmt.Errorf("ledger: fill %s: leg %d: %w", id, legIdx, ErrInvalidSpec)
	}
	leg := &pos.Legs[legIdx]
	if filled <= leg.Filled {
		return nil
	}
	if filled > leg.Quantity {
		filled = leg.Quantity
	}

	if avgPrice > 0 && avgPrice != leg.EntryPrice {
		delta := (avgPrice - leg.EntryPrice) * leg.Quantity
		if delta > l.portfolio.Cash+epsilon {
			return fmt.Errorf("ledger: fill %s: revision %.2f: %w", id, delta, domain.ErrInsufficientCapital)
		}
		l.portfolio.Cash -= delta
		l.portfolio.Locked += delta
		pos.Cost += delta
		leg.EntryPrice = avgPrice
	}
	leg.Filled = filled
	return nil
}

func (l *Ledger) finish(pos *domain.Position, status domain.PositionStatus, proceeds, realized float64) {
	now := l.now()
	l.portfolio.Locked -= pos.Cost
	l.portfolio.Cash += proceeds
	l.portfolio.RealizedPnL += realized
	l.rollDay(now)
	l.dayPnL += realized

	pos.Status = status
	pos.RealizedPnL += realized
	pos.ClosedAt = &now

	delete(l.open, pos.ID)
	for i, oid := range l.order {
		if oid == pos.ID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.closed = append(l.closed, clone(pos))
	if len(l.closed) > closedKeep {
		l.closed = l.closed[len(l.closed)-closedKeep:]
	}
}

func (l *Ledger) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(l.day) {
		l.day = day
		l.dayPnL = 0
	}
}

// Portfolio returns the current account.
func (l *Ledger) Portfolio() domain.Portfolio { return l.portfolio }

// Position looks up an OPEN position.
func (l *Ledger) Position(id string) (domain.Position, bool) {
	pos, ok := l.open[id]
	if !ok {
		return domain.Position{}, false
	}
	return clone(pos), true
}

// OpenPositions returns OPEN positions in creation order.
func (l *Ledger) OpenPositions() []domain.Position {
	out := make([]domain.Position, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, clone(l.open[id]))
	}
	return out
}

// OpenCount is len(OpenPositions()) without the copies.
func (l *Ledger) OpenCount() int { return len(l.open) }

// HasOpen reports whether instrumentID has an OPEN position.
func (l *Ledger) HasOpen(instrumentID string) bool {
	for _, pos := range l.open {
		if pos.InstrumentID == instrumentID {
			return true
		}
	}
	return false
}

// Exposure sums the cost of OPEN positions, optionally restricted to one
// instrument (empty instrumentID means all).
func (l *Ledger) Exposure(instrumentID string) float64 {
	var total float64
	for _, pos := range l.open {
		if instrumentID == "" || pos.InstrumentID == instrumentID {
			total += pos.Cost
		}
	}
	return total
}

// Closed returns the most recent terminal positions, newest last.
func (l *Ledger) Closed() []domain.Position {
	out := make([]domain.Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// RealizedToday is the P&L realized since UTC midnight.
func (l *Ledger) RealizedToday() float64 {
	l.rollDay(l.now())
	return l.dayPnL
}

// Snapshot records and returns a portfolio observation. Positions are
// valued at cost.
func (l *Ledger) Snapshot() domain.PortfolioSnapshot {
	snap := domain.PortfolioSnapshot{
		Strategy:       l.portfolio.Strategy,
		Cash:           l.portfolio.Cash,
		PositionsValue: l.portfolio.Locked,
		TotalValue:     l.portfolio.Equity(),
		RealizedPnL:    l.portfolio.RealizedPnL,
		OpenPositions:  len(l.open),
		Timestamp:      l.now(),
	}
	l.history = append(l.history, snap)
	if len(l.history) > historyCap {
		l.history = append([]domain.PortfolioSnapshot(nil), l.history[len(l.history)-historyKeep:]...)
	}
	return snap
}

// History returns recorded snapshots oldest first.
func (l *Ledger) History() []domain.PortfolioSnapshot {
	out := make([]domain.PortfolioSnapshot, len(l.history))
	copy(out, l.history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func clone(p *domain.Position) domain.Position {
	out := *p
	out.Legs = append([]domain.Leg(nil), p.Legs...)
	return out
}
