package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/ledger"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func arbSnapshot(askA, askB, liqA, liqB float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Instrument:   binary("m1", "will-it-rain"),
		BestAsk:      [2]float64{askA, askB},
		AskLiquidity: [2]float64{liqA, liqB},
		FetchedAt:    t0,
	}
}

func TestEvaluateArbitrageTakesTieredSize(t *testing.T) {
	opp := EvaluateArbitrage(arbSnapshot(0.45, 0.50, 5000, 5000), DefaultArbitrageConfig(), 10000, t0)

	require.True(t, opp.Taken(), opp.Reason)
	assert.InDelta(t, 0.048, opp.Edge, 1e-9)
	assert.InDelta(t, 600, opp.Size, 1e-9)
	assert.InDelta(t, 300/0.501, opp.ExpectedPayout, 1e-6)
	assert.InDelta(t, 598.80, opp.ExpectedPayout, 0.01)
	assert.InDelta(t, opp.ExpectedPayout-600, opp.ExpectedPnL, 1e-9)

	require.Len(t, opp.Legs, 2)
	assert.InDelta(t, 0.451, opp.Legs[0].Price, 1e-9)
	assert.InDelta(t, 0.501, opp.Legs[1].Price, 1e-9)
	assert.InDelta(t, 300/0.451, opp.Legs[0].Quantity, 1e-6)
	assert.Equal(t, "m1-a", opp.Legs[0].OutcomeID)
	assert.Equal(t, domain.OrderSideBuy, opp.Legs[1].Side)
}

func TestEvaluateArbitrageCapsByLiquidity(t *testing.T) {
	opp := EvaluateArbitrage(arbSnapshot(0.45, 0.50, 500, 800), DefaultArbitrageConfig(), 10000, t0)
	require.True(t, opp.Taken())
	assert.InDelta(t, 400, opp.Size, 1e-9)
}

func TestEvaluateArbitrageCapsByCash(t *testing.T) {
	opp := EvaluateArbitrage(arbSnapshot(0.45, 0.50, 10000, 10000), DefaultArbitrageConfig(), 100, t0)
	require.True(t, opp.Taken())
	assert.InDelta(t, 100, opp.Size, 1e-9)
	assert.InDelta(t, 100, opp.Cost(), 1e-9)
}

func TestEvaluateArbitrageSkips(t *testing.T) {
	noTier := DefaultArbitrageConfig()
	noTier.MinEdge = 0.005

	tests := []struct {
		name   string
		snap   domain.MarketSnapshot
		cfg    ArbitrageConfig
		cash   float64
		reason string
	}{
		{"below threshold", arbSnapshot(0.50, 0.495, 5000, 5000), DefaultArbitrageConfig(), 10000, domain.ReasonBelowThreshold},
		{"no tier", arbSnapshot(0.49, 0.50, 5000, 5000), noTier, 10000, domain.ReasonNoTier},
		{"low liquidity", arbSnapshot(0.45, 0.50, 5000, 40), DefaultArbitrageConfig(), 10000, domain.ReasonLowLiquidity},
		{"no cash", arbSnapshot(0.45, 0.50, 5000, 5000), DefaultArbitrageConfig(), 0, domain.ReasonInsufficientCash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := EvaluateArbitrage(tt.snap, tt.cfg, tt.cash, t0)
			assert.False(t, opp.Taken())
			assert.Equal(t, tt.reason, opp.Reason)
			assert.Zero(t, opp.Size)
			assert.Empty(t, opp.Legs)
		})
	}
}

func TestArbitrageEntriesFromRefresh(t *testing.T) {
	good := binary("m1", "will-it-rain")
	pricey := binary("m2", "will-it-snow")
	excluded := binary("m3", "btc-updown-15m-1700000100")
	src := newFakeSource(good, pricey, excluded)
	src.setBook(book("m1-a", 0.44, 0.45, 10000))
	src.setBook(book("m1-b", 0.49, 0.50, 10000))
	src.setBook(book("m2-a", 0.54, 0.55, 10000))
	src.setBook(book("m2-b", 0.49, 0.50, 10000))
	src.setBook(book("m3-a", 0.30, 0.31, 10000))
	src.setBook(book("m3-b", 0.30, 0.31, 10000))

	a := NewArbitrage(DefaultArbitrageConfig(), src, discard())
	require.NoError(t, a.Refresh(t.Context(), t0))

	opps := a.Entries(t.Context(), ledger.New(ArbitrageName, 1000), t0)
	require.Len(t, opps, 1, "negative edge and excluded markets produce no decision")
	assert.Equal(t, "m1", opps[0].InstrumentID)
	assert.True(t, opps[0].Taken())
}

func TestArbitrageEntriesSkipEmptyBooks(t *testing.T) {
	src := newFakeSource(binary("m1", "will-it-rain"))
	src.setBook(book("m1-a", 0.44, 0.45, 10000))

	a := NewArbitrage(DefaultArbitrageConfig(), src, discard())
	require.NoError(t, a.Refresh(t.Context(), t0))
	assert.Empty(t, a.Entries(t.Context(), ledger.New(ArbitrageName, 1000), t0))
}

func TestArbitrageSettlesResolvedMarkets(t *testing.T) {
	inst := binary("m1", "will-it-rain")
	src := newFakeSource(inst)
	l := ledger.New(ArbitrageName, 1000)
	pos, err := l.Open(domain.PositionSpec{
		Strategy:     ArbitrageName,
		InstrumentID: "m1",
		Slug:         "will-it-rain",
		Legs: []domain.Leg{
			{OutcomeID: "m1-a", EntryPrice: 0.45, Quantity: 10, Filled: 10},
			{OutcomeID: "m1-b", EntryPrice: 0.50, Quantity: 10, Filled: 10},
		},
	})
	require.NoError(t, err)

	a := NewArbitrage(DefaultArbitrageConfig(), src, discard())
	assert.Empty(t, a.Exits(t.Context(), l, t0), "open market is not settled")

	inst.Closed = true
	inst.Prices = [2]float64{0.0005, 0.9995}
	src.instruments = []domain.Instrument{inst}

	assert.Empty(t, a.Exits(t.Context(), l, t0.Add(time.Second)), "checked at most once per interval")

	exits := a.Exits(t.Context(), l, t0.Add(time.Minute))
	require.Len(t, exits, 1)
	assert.Equal(t, pos.ID, exits[0].PositionID)
	assert.Equal(t, ExitSettle, exits[0].Kind)
	assert.Equal(t, "m1-b", exits[0].WinningOutcome)
}

func TestClosedMarketWithoutWinnerWaits(t *testing.T) {
	inst := binary("m1", "will-it-rain")
	inst.Closed = true
	inst.Prices = [2]float64{0.5, 0.5}
	src := newFakeSource(inst)

	l := ledger.New(ArbitrageName, 1000)
	_, err := l.Open(domain.PositionSpec{
		InstrumentID: "m1",
		Slug:         "will-it-rain",
		Legs:         []domain.Leg{{OutcomeID: "m1-a", EntryPrice: 0.45, Quantity: 10, Filled: 10}},
	})
	require.NoError(t, err)

	assert.Empty(t, settleResolved(t.Context(), src, l.OpenPositions()))
}
