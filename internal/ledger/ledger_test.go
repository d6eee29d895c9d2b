package ledger

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

const tol = 1e-6

func newTestLedger(capital float64) *Ledger {
	n := 0
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return New("test", capital,
		WithClock(func() time.Time { return now }),
		WithIDFunc(func() string { n++; return fmt.Sprintf("pos-%d", n) }),
	)
}

func singleLeg(instrument string, price, qty float64) domain.PositionSpec {
	return domain.PositionSpec{
		Strategy:     "test",
		InstrumentID: instrument,
		Legs: []domain.Leg{{
			OutcomeID:  instrument + "-yes",
			EntryPrice: price,
			Quantity:   qty,
			Filled:     qty,
		}},
	}
}

func TestOpenDebitsCashAndLocksCapital(t *testing.T) {
	l := newTestLedger(1000)

	pos, err := l.Open(singleLeg("m1", 0.5, 100))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.InDelta(t, 50, pos.Cost, tol)

	pf := l.Portfolio()
	assert.InDelta(t, 950, pf.Cash, tol)
	assert.InDelta(t, 50, pf.Locked, tol)
	assert.True(t, pf.Balanced(tol))
}

func TestOpenRejectsInsufficientCapital(t *testing.T) {
	l := newTestLedger(10)

	_, err := l.Open(singleLeg("m1", 0.5, 100))
	require.ErrorIs(t, err, domain.ErrInsufficientCapital)

	pf := l.Portfolio()
	assert.InDelta(t, 10, pf.Cash, tol)
	assert.Zero(t, pf.Locked)
	assert.Zero(t, l.OpenCount())
}

func TestOpenRejectsInvalidSpec(t *testing.T) {
	l := newTestLedger(100)

	_, err := l.Open(domain.PositionSpec{InstrumentID: "m1"})
	require.ErrorIs(t, err, ErrInvalidSpec)

	_, err = l.Open(singleLeg("m1", 0, 10))
	require.ErrorIs(t, err, ErrInvalidSpec)
}

func TestOpenThenCloseRestoresLocked(t *testing.T) {
	l := newTestLedger(1000)
	before := l.Portfolio().Locked

	pos, err := l.Open(singleLeg("m1", 0.40, 100))
	require.NoError(t, err)

	pnl, err := l.Close(pos.ID, 0.60, domain.ExitProfitTarget)
	require.NoError(t, err)
	assert.InDelta(t, 20, pnl, tol)

	pf := l.Portfolio()
	assert.InDelta(t, before, pf.Locked, tol)
	assert.InDelta(t, 1020, pf.Cash, tol)
	assert.InDelta(t, 20, pf.RealizedPnL, tol)
	assert.True(t, pf.Balanced(tol))

	closed := l.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, domain.PositionStatusClosed, closed[0].Status)
	assert.Equal(t, domain.ExitProfitTarget, closed[0].ExitReason)
}

func TestCloseAtLoss(t *testing.T) {
	l := newTestLedger(100)
	pos, err := l.Open(singleLeg("m1", 0.50, 100))
	require.NoError(t, err)

	pnl, err := l.Close(pos.ID, 0.30, domain.ExitStopLoss)
	require.NoError(t, err)
	assert.InDelta(t, -20, pnl, tol)
	assert.InDelta(t, 80, l.Portfolio().Cash, tol)
	assert.True(t, l.Portfolio().Balanced(tol))
}

func TestReduceSellsPartOfAPosition(t *testing.T) {
	l := newTestLedger(1000)
	pos, err := l.Open(singleLeg("m1", 0.50, 10))
	require.NoError(t, err)

	pnl, err := l.Reduce(pos.ID, 4, 0.80, domain.ExitProfitTarget)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, pnl, tol)

	left, ok := l.Position(pos.ID)
	require.True(t, ok)
	assert.Equal(t, domain.PositionStatusOpen, left.Status)
	assert.InDelta(t, 6, left.Legs[0].Filled, tol)
	assert.InDelta(t, 3, left.Cost, tol)

	pf := l.Portfolio()
	assert.InDelta(t, 998.2, pf.Cash, tol)
	assert.InDelta(t, 3, pf.Locked, tol)
	assert.True(t, pf.Balanced(tol))

	pnl, err = l.Reduce(pos.ID, 6, 0.40, domain.ExitStopLoss)
	require.NoError(t, err)
	assert.InDelta(t, -0.6, pnl, tol)
	assert.Zero(t, l.OpenCount(), "selling the rest closes the position")

	closed := l.Closed()
	require.Len(t, closed, 1)
	assert.InDelta(t, 0.6, closed[0].RealizedPnL, tol)
	assert.True(t, l.Portfolio().Balanced(tol))
}

func TestReduceRejectsBadRequests(t *testing.T) {
	l := newTestLedger(1000)
	pos, err := l.Open(singleLeg("m1", 0.50, 10))
	require.NoError(t, err)

	_, err = l.Reduce(pos.ID, 11, 0.8, domain.ExitProfitTarget)
	require.ErrorIs(t, err, domain.ErrInvalidExit)
	_, err = l.Reduce(pos.ID, 0, 0.8, domain.ExitProfitTarget)
	require.ErrorIs(t, err, domain.ErrInvalidExit)
	_, err = l.Reduce("nope", 1, 0.8, domain.ExitProfitTarget)
	require.ErrorIs(t, err, domain.ErrUnknownPosition)
	assert.InDelta(t, 995, l.Portfolio().Cash, tol)
}

func TestSettleWinningVersusLosing(t *testing.T) {
	for _, tc := range []struct {
		name    string
		winner  string
		payout  float64
		realize float64
	}{
		{name: "winning", winner: "m1-yes", payout: 100, realize: 60},
		{name: "losing", winner: "m1-no", payout: 0, realize: -40},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(1000)
			pos, err := l.Open(singleLeg("m1", 0.40, 100))
			require.NoError(t, err)
			cashAfterOpen := l.Portfolio().Cash

			pnl, err := l.Settle(pos.ID, tc.winner)
			require.NoError(t, err)
			assert.InDelta(t, tc.realize, pnl, tol)

			pf := l.Portfolio()
			assert.InDelta(t, cashAfterOpen+tc.payout, pf.Cash, tol)
			assert.Zero(t, pf.Locked)
			assert.True(t, pf.Balanced(tol))
		})
	}
}

func TestTerminalPositionsCannotTransitionAgain(t *testing.T) {
	l := newTestLedger(1000)
	pos, err := l.Open(singleLeg("m1", 0.5, 10))
	require.NoError(t, err)

	_, err = l.Settle(pos.ID, "m1-yes")
	require.NoError(t, err)

	_, err = l.Close(pos.ID, 0.9, domain.ExitProfitTarget)
	require.ErrorIs(t, err, domain.ErrUnknownPosition)
	_, err = l.Settle(pos.ID, "m1-yes")
	require.ErrorIs(t, err, domain.ErrUnknownPosition)

	_, err = l.Close("missing", 0.5, domain.ExitStopLoss)
	require.ErrorIs(t, err, domain.ErrUnknownPosition)
}

func TestCloseRejectsMultiLegPositions(t *testing.T) {
	l := newTestLedger(1000)
	pos, err := l.Open(domain.PositionSpec{
		InstrumentID: "m1",
		Legs: []domain.Leg{
			{OutcomeID: "a", EntryPrice: 0.45, Quantity: 10, Filled: 10},
			{OutcomeID: "b", EntryPrice: 0.50, Quantity: 10, Filled: 10},
		},
	})
	require.NoError(t, err)

	_, err = l.Close(pos.ID, 0.5, domain.ExitStopLoss)
	require.ErrorIs(t, err, domain.ErrInvalidExit)

	pnl, err := l.Settle(pos.ID, "b")
	require.NoError(t, err)
	assert.InDelta(t, 10-9.5, pnl, tol)
}

func TestApplyFillAndSettleRefundsUnfilled(t *testing.T) {
	l := newTestLedger(1000)
	spec := singleLeg("m1", 0.96, 100)
	spec.Legs[0].Filled = 0
	pos, err := l.Open(spec)
	require.NoError(t, err)
	assert.InDelta(t, 96, l.Portfolio().Locked, tol)

	require.NoError(t, l.ApplyFill(pos.ID, 0, 40, 0))
	// stale update is ignored
	require.NoError(t, l.ApplyFill(pos.ID, 0, 30, 0))

	got, ok := l.Position(pos.ID)
	require.True(t, ok)
	assert.InDelta(t, 40, got.Legs[0].Filled, tol)
	assert.True(t, got.HasUnfilled())

	pnl, err := l.Settle(pos.ID, "m1-yes")
	require.NoError(t, err)
	// 40 shares pay 1.0, 60 unfilled refunded at 0.96
	assert.InDelta(t, 40+60*0.96-96, pnl, tol)
	assert.True(t, l.Portfolio().Balanced(tol))
}

func TestApplyFillPriceRevisionKeepsInvariant(t *testing.T) {
	l := newTestLedger(200)
	spec := singleLeg("m1", 0.96, 100)
	spec.Legs[0].Filled = 0
	pos, err := l.Open(spec)
	require.NoError(t, err)

	require.NoError(t, l.ApplyFill(pos.ID, 0, 100, 0.95))
	pf := l.Portfolio()
	assert.InDelta(t, 95, pf.Locked, tol)
	assert.InDelta(t, 105, pf.Cash, tol)
	assert.True(t, pf.Balanced(tol))
}

func TestInvariantHoldsUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := newTestLedger(1000)

	for i := 0; i < 2000; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || l.OpenCount() == 0:
			price := 0.05 + rng.Float64()*0.9
			qty := 1 + rng.Float64()*200
			_, err := l.Open(singleLeg(fmt.Sprintf("m%d", i), price, qty))
			if err != nil {
				require.ErrorIs(t, err, domain.ErrInsufficientCapital)
			}
		case op == 1:
			open := l.OpenPositions()
			p := open[rng.Intn(len(open))]
			_, err := l.Close(p.ID, rng.Float64(), domain.ExitStopLoss)
			require.NoError(t, err)
		default:
			open := l.OpenPositions()
			p := open[rng.Intn(len(open))]
			winner := p.Legs[0].OutcomeID
			if rng.Intn(2) == 0 {
				winner = "other"
			}
			_, err := l.Settle(p.ID, winner)
			require.NoError(t, err)
		}

		pf := l.Portfolio()
		require.True(t, pf.Balanced(tol), "iteration %d: %+v", i, pf)
		require.GreaterOrEqual(t, pf.Cash, -tol)
	}
}

func TestSnapshotHistoryIsBounded(t *testing.T) {
	l := newTestLedger(100)
	for i := 0; i < historyCap+1; i++ {
		l.Snapshot()
	}
	assert.Len(t, l.History(), historyKeep)
}

func TestExposureAndHasOpen(t *testing.T) {
	l := newTestLedger(1000)
	_, err := l.Open(singleLeg("m1", 0.5, 100))
	require.NoError(t, err)
	_, err = l.Open(singleLeg("m2", 0.25, 100))
	require.NoError(t, err)

	assert.True(t, l.HasOpen("m1"))
	assert.False(t, l.HasOpen("m3"))
	assert.InDelta(t, 50, l.Exposure("m1"), tol)
	assert.InDelta(t, 75, l.Exposure(""), tol)
}
