package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/ledger"
	"github.com/alanyoungcy/polystrat/internal/sports"
)

func lakersWin() domain.GameResult {
	return domain.GameResult{
		ID:        "401585601",
		League:    domain.LeagueNBA,
		HomeTeam:  "Los Angeles Lakers",
		AwayTeam:  "Golden State Warriors",
		HomeScore: 115,
		AwayScore: 108,
		Winner:    "Los Angeles Lakers",
		Margin:    7,
		Final:     true,
	}
}

func lakersMarket() domain.Instrument {
	inst := binary("s1", "lakers-vs-warriors")
	inst.Question = "Will the Lakers beat the Warriors?"
	inst.Prices = [2]float64{0.94, 0.06}
	return inst
}

func lakersCandidate(t *testing.T, price float64) SnipeCandidate {
	t.Helper()
	m, ok := sports.MatchGame(lakersWin(), lakersMarket())
	require.True(t, ok)
	return SnipeCandidate{Match: m, Price: price}
}

func TestEvaluateSnipeTakes(t *testing.T) {
	opp := EvaluateSnipe(lakersCandidate(t, 0.93), DefaultSniperConfig(), 0, 0, t0)

	require.True(t, opp.Taken(), opp.Reason)
	assert.InDelta(t, 0.07/0.93, opp.Edge, 1e-9)
	assert.InDelta(t, sports.ConfidenceBoth, opp.Confidence, 1e-9)
	assert.InDelta(t, 100, opp.Size, 1e-9)
	require.Len(t, opp.Legs, 1)
	leg := opp.Legs[0]
	assert.Equal(t, "s1-a", leg.OutcomeID)
	assert.True(t, leg.Maker)
	assert.InDelta(t, 0.96, leg.Price, 1e-9)
	assert.InDelta(t, 100/0.96, leg.Quantity, 1e-9)
	assert.InDelta(t, 100/0.96-100, opp.ExpectedPnL, 1e-9)
	assert.Equal(t, "Los Angeles Lakers won by 7", opp.Reason)
}

func TestEvaluateSnipeSkips(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		confident bool
		market    float64
		total     float64
		reason    string
	}{
		{"price too low", 0.85, true, 0, 0, ReasonPriceTooLow},
		{"price too high", 0.98, true, 0, 0, ReasonPriceTooHigh},
		{"total exposure", 0.93, true, 0, 1950, ReasonExposureCap},
		{"market exposure", 0.93, true, 450, 450, ReasonMarketCap},
		{"low confidence", 0.93, false, 0, 0, ReasonLowConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := lakersCandidate(t, tt.price)
			if !tt.confident {
				c.Match.Confidence = sports.ConfidenceSingle
			}
			opp := EvaluateSnipe(c, DefaultSniperConfig(), tt.market, tt.total, t0)
			assert.False(t, opp.Taken())
			assert.Equal(t, tt.reason, opp.Reason)
			assert.Empty(t, opp.Legs)
		})
	}
}

type fakeResults struct {
	games map[domain.League][]domain.GameResult
	calls int
}

func (f *fakeResults) FinishedGames(_ context.Context, league domain.League) []domain.GameResult {
	f.calls++
	return f.games[league]
}

func TestSniperEntriesOncePerGameScan(t *testing.T) {
	unrelated := binary("s2", "chiefs-vs-ravens")
	unrelated.Question = "Will the Chiefs beat the Ravens?"
	src := newFakeSource(lakersMarket(), unrelated)
	src.setBook(book("s1-a", 0.92, 0.93, 500))

	tight := lakersWin()
	tight.ID = "close-game"
	tight.Margin = 2
	results := &fakeResults{games: map[domain.League][]domain.GameResult{
		domain.LeagueNBA: {lakersWin(), tight},
	}}

	s := NewSniper(DefaultSniperConfig(), src, results, discard())
	l := ledger.New(SniperName, 2000)

	require.NoError(t, s.Refresh(t.Context(), t0))
	assert.Equal(t, 2, results.calls, "one call per configured league")

	opps := s.Entries(t.Context(), l, t0)
	require.Len(t, opps, 1, "only the matching market is decided, the close game is filtered")
	assert.True(t, opps[0].Taken())
	assert.Equal(t, 0.93, opps[0].Meta["current_price"])

	require.NoError(t, s.Refresh(t.Context(), t0.Add(5*time.Second)))
	assert.Empty(t, s.Entries(t.Context(), l, t0.Add(5*time.Second)), "no new game scan yet")
}

func TestSniperFallsBackToQuotedPrice(t *testing.T) {
	src := newFakeSource(lakersMarket())
	results := &fakeResults{games: map[domain.League][]domain.GameResult{domain.LeagueNBA: {lakersWin()}}}

	s := NewSniper(DefaultSniperConfig(), src, results, discard())
	require.NoError(t, s.Refresh(t.Context(), t0))
	opps := s.Entries(t.Context(), ledger.New(SniperName, 2000), t0)
	require.Len(t, opps, 1)
	assert.Equal(t, 0.94, opps[0].Meta["current_price"])
	assert.True(t, opps[0].Taken())
}

func TestSniperMarksHeldGamesSeen(t *testing.T) {
	src := newFakeSource(lakersMarket())
	src.setBook(book("s1-a", 0.92, 0.93, 500))
	results := &fakeResults{games: map[domain.League][]domain.GameResult{domain.LeagueNBA: {lakersWin()}}}

	l := ledger.New(SniperName, 2000)
	_, err := l.Open(domain.PositionSpec{
		InstrumentID: "s1",
		Slug:         "lakers-vs-warriors",
		Legs:         []domain.Leg{{OutcomeID: "s1-a", EntryPrice: 0.96, Quantity: 100, Filled: 100}},
	})
	require.NoError(t, err)

	cfg := DefaultSniperConfig()
	s := NewSniper(cfg, src, results, discard())
	require.NoError(t, s.Refresh(t.Context(), t0))
	assert.Empty(t, s.Entries(t.Context(), l, t0))

	require.NoError(t, s.Refresh(t.Context(), t0.Add(cfg.GameScanInterval)))
	assert.Empty(t, s.Entries(t.Context(), l, t0.Add(cfg.GameScanInterval)), "seen games are not rescanned")
}
