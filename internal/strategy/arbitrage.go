package strategy

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// ArbitrageName is the registry name of the cross-outcome arbitrage strategy.
const ArbitrageName = "arbitrage"

// Tier maps a minimum net edge to the largest position it justifies.
type Tier struct {
	MinEdge float64
	MaxSize float64
}

// ArbitrageConfig parameterizes the arbitrage evaluator and strategy.
type ArbitrageConfig struct {
	Params
	MinEdge            float64
	Slippage           float64 // per leg
	Tiers              []Tier  // ascending by MinEdge
	MinLiquidity       float64
	LiquidityFraction  float64
	SettlementInterval time.Duration
	MarketLimit        int
	ExcludedPatterns   []string
}

// DefaultArbitrageConfig returns the production parameters.
func DefaultArbitrageConfig() ArbitrageConfig {
	return ArbitrageConfig{
		Params: Params{
			StartingCapital: 1000,
			PollInterval:    5 * time.Second,
			MaxPositions:    5,
			MinCash:         50,
		},
		MinEdge:  0.01,
		Slippage: 0.001,
		Tiers: []Tier{
			{MinEdge: 0.01, MaxSize: 50},
			{MinEdge: 0.02, MaxSize: 200},
			{MinEdge: 0.03, MaxSize: 400},
			{MinEdge: 0.04, MaxSize: 600},
			{MinEdge: 0.05, MaxSize: 1000},
		},
		MinLiquidity:       50,
		LiquidityFraction:  0.8,
		SettlementInterval: 30 * time.Second,
		MarketLimit:        500,
		ExcludedPatterns:   []string{"-updown-15m-", "-updown-5m-", "-updown-1m-"},
	}
}

// tierSize returns the size of the highest tier netEdge clears, or 0.
func (c ArbitrageConfig) tierSize(netEdge float64) float64 {
	for i := len(c.Tiers) - 1; i >= 0; i-- {
		if netEdge >= c.Tiers[i].MinEdge {
			return c.Tiers[i].MaxSize
		}
	}
	return 0
}

func (c ArbitrageConfig) excluded(slug string) bool {
	for _, p := range c.ExcludedPatterns {
		if strings.Contains(slug, p) {
			return true
		}
	}
	return false
}

// EvaluateArbitrage scores buying both outcomes of snap with at most cash.
// The guaranteed payout is the smaller leg's share count: excess shares on
// the larger leg are treated as unrecoverable.
func EvaluateArbitrage(snap domain.MarketSnapshot, cfg ArbitrageConfig, cash float64, now time.Time) domain.Opportunity {
	inst := snap.Instrument
	askA, askB := snap.BestAsk[0], snap.BestAsk[1]
	liqA, liqB := snap.AskLiquidity[0], snap.AskLiquidity[1]

	raw := 1 - (askA + askB)
	net := raw - 2*cfg.Slippage

	opp := domain.Opportunity{
		Strategy:     ArbitrageName,
		InstrumentID: inst.ID,
		Slug:         inst.Slug,
		Question:     inst.Question,
		Edge:         net,
		EndTime:      inst.EndTime,
		CreatedAt:    now,
		Meta: map[string]any{
			"raw_edge":    raw,
			"ask_a":       askA,
			"ask_b":       askB,
			"liquidity_a": liqA,
			"liquidity_b": liqB,
		},
	}

	if net < cfg.MinEdge {
		return opp.Skip(domain.ReasonBelowThreshold)
	}
	tier := cfg.tierSize(net)
	if tier == 0 {
		return opp.Skip(domain.ReasonNoTier)
	}
	minLiq := min(liqA, liqB)
	if minLiq < cfg.MinLiquidity {
		return opp.Skip(domain.ReasonLowLiquidity)
	}

	if cash <= 0 {
		return opp.Skip(domain.ReasonInsufficientCash)
	}

	size := min(tier, cfg.LiquidityFraction*minLiq, cash)
	half := size / 2
	priceA := askA + cfg.Slippage
	priceB := askB + cfg.Slippage
	sharesA := half / priceA
	sharesB := half / priceB
	payout := min(sharesA, sharesB)

	opp.Size = size
	opp.ExpectedPayout = payout
	opp.ExpectedPnL = payout - size
	opp.Legs = []domain.LegOrder{
		{OutcomeID: inst.Outcomes[0].ID, OutcomeName: inst.Outcomes[0].Name, Side: domain.OrderSideBuy, Price: priceA, Quantity: sharesA},
		{OutcomeID: inst.Outcomes[1].ID, OutcomeName: inst.Outcomes[1].Name, Side: domain.OrderSideBuy, Price: priceB, Quantity: sharesB},
	}
	return opp.Take()
}

// Arbitrage buys both sides of binary markets whose asks sum below 1 and
// holds them to settlement.
type Arbitrage struct {
	cfg    ArbitrageConfig
	source domain.MarketSource
	logger *slog.Logger

	snapshots      []domain.MarketSnapshot
	lastSettlement time.Time
}

// NewArbitrage creates the arbitrage strategy.
func NewArbitrage(cfg ArbitrageConfig, source domain.MarketSource, logger *slog.Logger) *Arbitrage {
	return &Arbitrage{
		cfg:    cfg,
		source: source,
		logger: logger.With(slog.String("strategy", ArbitrageName)),
	}
}

// Name returns the strategy identifier.
func (a *Arbitrage) Name() string { return ArbitrageName }

// Params returns the loop parameters.
func (a *Arbitrage) Params() Params { return a.cfg.Params }

// Refresh snapshots every eligible active instrument.
func (a *Arbitrage) Refresh(ctx context.Context, now time.Time) error {
	instruments := a.source.ListInstruments(ctx, domain.InstrumentFilter{
		Active: true,
		Limit:  a.cfg.MarketLimit,
	})

	a.snapshots = a.snapshots[:0]
	for _, inst := range instruments {
		if ctx.Err() != nil {
			return nil
		}
		if inst.Closed || a.cfg.excluded(inst.Slug) {
			continue
		}
		if snap, ok := takeSnapshot(ctx, a.source, inst, now); ok {
			a.snapshots = append(a.snapshots, snap)
		}
	}
	a.logger.DebugContext(ctx, "arbitrage scan",
		slog.Int("instruments", len(instruments)),
		slog.Int("snapshots", len(a.snapshots)),
	)
	return nil
}

// Exits settles positions whose market has resolved. Resolution is polled
// every SettlementInterval rather than every cycle.
func (a *Arbitrage) Exits(ctx context.Context, book Book, now time.Time) []Exit {
	if now.Sub(a.lastSettlement) < a.cfg.SettlementInterval {
		return nil
	}
	a.lastSettlement = now

	open := book.OpenPositions()
	if len(open) == 0 {
		return nil
	}
	return settleResolved(ctx, a.source, open)
}

// Entries evaluates every snapshot with a positive raw edge. Actionable
// opportunities come first, best edge first.
func (a *Arbitrage) Entries(_ context.Context, book Book, now time.Time) []domain.Opportunity {
	cash := book.Portfolio().Cash
	out := make([]domain.Opportunity, 0)
	for _, snap := range a.snapshots {
		if 1-(snap.BestAsk[0]+snap.BestAsk[1]) <= 0 {
			continue
		}
		out = append(out, EvaluateArbitrage(snap, a.cfg, cash, now))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Taken() != out[j].Taken() {
			return out[i].Taken()
		}
		return out[i].Edge > out[j].Edge
	})
	return out
}

// settleResolved looks up the instruments behind open and returns a
// settlement exit for each one the venue reports as resolved. Closed markets
// without a clear winner are left for a later check.
func settleResolved(ctx context.Context, src domain.MarketSource, open []domain.Position) []Exit {
	slugs := make([]string, 0, len(open))
	for _, pos := range open {
		slugs = append(slugs, pos.Slug)
	}
	byID := make(map[string]domain.Instrument)
	for _, inst := range src.ListInstruments(ctx, domain.InstrumentFilter{Slugs: slugs}) {
		byID[inst.ID] = inst
	}

	var exits []Exit
	for _, pos := range open {
		inst, ok := byID[pos.InstrumentID]
		if !ok {
			continue
		}
		idx, ok := inst.ResolvedWinner()
		if !ok {
			continue
		}
		exits = append(exits, Exit{
			PositionID:     pos.ID,
			Kind:           ExitSettle,
			Reason:         domain.ExitResolved,
			WinningOutcome: inst.Outcomes[idx].ID,
		})
	}
	return exits
}
