package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// CrashName is the registry name of the crash-reversion strategy.
const CrashName = "crash_reversion"

// Crash-reversion skip reasons.
const (
	ReasonNotStabilized  = "not_stabilized"
	ReasonNearSettlement = "near_settlement"
	ReasonCooldown       = "cooldown"
)

// CrashConfig parameterizes the crash detector and strategy.
type CrashConfig struct {
	Params
	Assets          []string
	MarketWindow    time.Duration
	Lookback        time.Duration
	NoBuyWindow     time.Duration
	CrashPrice      float64 // current price must be below this
	RecentHighMin   float64
	MinDrop         float64 // fractional drop from the recent high
	ProfitTarget    float64
	StopLoss        float64
	ForceExitWindow time.Duration
	MaxPositionSize float64
	// StabilizationTicks is N: the last N+1 ticks must be non-decreasing.
	StabilizationTicks int
	RequireBounce      bool
	MinBounce          float64
	Cooldown           time.Duration
}

// DefaultCrashConfig returns the production parameters.
func DefaultCrashConfig() CrashConfig {
	return CrashConfig{
		Params: Params{
			StartingCapital: 1000,
			PollInterval:    time.Second,
			MaxPositions:    3,
			MinCash:         50,
		},
		Assets:             []string{"btc", "eth", "sol", "xrp"},
		MarketWindow:       15 * time.Minute,
		Lookback:           120 * time.Second,
		NoBuyWindow:        180 * time.Second,
		CrashPrice:         0.20,
		RecentHighMin:      0.35,
		MinDrop:            0.40,
		ProfitTarget:       0.50,
		StopLoss:           0.30,
		ForceExitWindow:    60 * time.Second,
		MaxPositionSize:    50,
		StabilizationTicks: 3,
		RequireBounce:      true,
		MinBounce:          0.10,
		Cooldown:           120 * time.Second,
	}
}

// CrashInfo describes a detected crash.
type CrashInfo struct {
	Price      float64
	RecentHigh float64
	Drop       float64
}

// CrashDetector holds the per-outcome price state used to spot crashes and
// the per-instrument stop-loss cooldowns.
type CrashDetector struct {
	cfg       CrashConfig
	tracker   *PriceTracker
	cooldowns map[string]time.Time
}

// NewCrashDetector creates a detector for cfg.
func NewCrashDetector(cfg CrashConfig) *CrashDetector {
	return &CrashDetector{
		cfg:       cfg,
		tracker:   NewPriceTracker(cfg.Lookback, cfg.StabilizationTicks+1),
		cooldowns: make(map[string]time.Time),
	}
}

// Observe records a price tick for an outcome.
func (d *CrashDetector) Observe(outcomeID string, price float64, ts time.Time) {
	d.tracker.Track(outcomeID, price, ts)
}

// Crash reports whether price is a crash against the outcome's recent high.
func (d *CrashDetector) Crash(outcomeID string, price float64) (CrashInfo, bool) {
	high := d.tracker.High(outcomeID)
	info := CrashInfo{Price: price, RecentHigh: high}
	if price >= d.cfg.CrashPrice || high < d.cfg.RecentHighMin || high <= 0 {
		return info, false
	}
	info.Drop = (high - price) / high
	return info, info.Drop >= d.cfg.MinDrop
}

// Stabilized reports whether the last N+1 ticks are non-decreasing and,
// when a bounce is required, price sits far enough above the window low.
// The second return value explains a false result.
func (d *CrashDetector) Stabilized(outcomeID string, price float64) (bool, string) {
	need := d.cfg.StabilizationTicks + 1
	ticks := d.tracker.Ticks(outcomeID)
	if len(ticks) < need {
		return false, fmt.Sprintf("need_%d_ticks", need)
	}
	recent := ticks[len(ticks)-need:]
	for i := 1; i < len(recent); i++ {
		if recent[i] < recent[i-1] {
			return false, "still_falling"
		}
	}
	if d.cfg.RequireBounce {
		low := d.tracker.Low(outcomeID)
		var bounce float64
		if low > 0 {
			bounce = (price - low) / low
		}
		if bounce < d.cfg.MinBounce {
			return false, fmt.Sprintf("no_bounce_%.0f%%", bounce*100)
		}
	}
	return true, "stabilized"
}

// Expire drops price state for outcomes that have not ticked within the
// lookback and cooldowns that have run out. It returns the number of
// outcomes dropped.
func (d *CrashDetector) Expire(now time.Time) int {
	for id, started := range d.cooldowns {
		if now.Sub(started) >= d.cfg.Cooldown {
			delete(d.cooldowns, id)
		}
	}
	return d.tracker.Prune(now)
}

// StartCooldown blocks entries on instrumentID for the configured cooldown.
func (d *CrashDetector) StartCooldown(instrumentID string, now time.Time) {
	d.cooldowns[instrumentID] = now
}

// InCooldown reports whether instrumentID is cooling down, clearing the
// timer once it has elapsed.
func (d *CrashDetector) InCooldown(instrumentID string, now time.Time) bool {
	started, ok := d.cooldowns[instrumentID]
	if !ok {
		return false
	}
	if now.Sub(started) >= d.cfg.Cooldown {
		delete(d.cooldowns, instrumentID)
		return false
	}
	return true
}

// Evaluate scores buying outcome idx of snap at its ask. ok is false when
// no crash is present; such non-events are not worth recording.
func (d *CrashDetector) Evaluate(snap domain.MarketSnapshot, idx int, cash float64, now time.Time) (domain.Opportunity, bool) {
	inst := snap.Instrument
	outcome := inst.Outcomes[idx]
	ask := snap.BestAsk[idx]

	info, crashed := d.Crash(outcome.ID, ask)
	if !crashed {
		return domain.Opportunity{}, false
	}

	opp := domain.Opportunity{
		Strategy:     CrashName,
		InstrumentID: inst.ID,
		Slug:         inst.Slug,
		Question:     inst.Question,
		Edge:         info.Drop,
		EndTime:      inst.EndTime,
		CreatedAt:    now,
		Meta: map[string]any{
			"outcome":     outcome.Name,
			"ask":         ask,
			"recent_high": info.RecentHigh,
			"drop":        info.Drop,
		},
	}

	if snap.TimeToEnd(now) < d.cfg.NoBuyWindow {
		return opp.Skip(ReasonNearSettlement), true
	}
	if d.InCooldown(inst.ID, now) {
		return opp.Skip(ReasonCooldown), true
	}
	if ok, why := d.Stabilized(outcome.ID, ask); !ok {
		opp.Meta["stabilization"] = why
		return opp.Skip(ReasonNotStabilized), true
	}
	if ask <= 0 {
		return opp.Skip(domain.ReasonBelowThreshold), true
	}

	value := min(d.cfg.MaxPositionSize, cash)
	qty := value / ask
	opp.Size = value
	opp.ExpectedPayout = qty * ask * (1 + d.cfg.ProfitTarget)
	opp.ExpectedPnL = opp.ExpectedPayout - value
	opp.Legs = []domain.LegOrder{{
		OutcomeID:   outcome.ID,
		OutcomeName: outcome.Name,
		Side:        domain.OrderSideBuy,
		Price:       ask,
		Quantity:    qty,
	}}
	opp = opp.Take()
	opp.Reason = fmt.Sprintf("CRASH_%.0f%%", info.Drop*100)
	return opp, true
}

// ExitFor checks an OPEN single-leg position against the current bid.
func (d *CrashDetector) ExitFor(pos domain.Position, snap domain.MarketSnapshot, now time.Time) (Exit, bool) {
	if len(pos.Legs) != 1 {
		return Exit{}, false
	}
	leg := pos.Legs[0]
	idx := snap.OutcomeIndex(leg.OutcomeID)
	if idx < 0 {
		return Exit{}, false
	}
	bid := snap.BestBid[idx]
	if bid <= 0 || leg.EntryPrice <= 0 {
		return Exit{}, false
	}

	pnl := (bid - leg.EntryPrice) / leg.EntryPrice
	reason := ""
	switch {
	case pnl >= d.cfg.ProfitTarget:
		reason = domain.ExitProfitTarget
	case pnl <= -d.cfg.StopLoss:
		reason = domain.ExitStopLoss
	case snap.TimeToEnd(now) < d.cfg.ForceExitWindow:
		reason = domain.ExitSettlement
	default:
		return Exit{}, false
	}
	return Exit{PositionID: pos.ID, Kind: ExitClose, Price: bid, Reason: reason}, true
}

// CrashReversion buys outcomes of short-dated up/down markets after a sharp
// drop has stabilized and scalps the rebound.
type CrashReversion struct {
	cfg      CrashConfig
	source   domain.MarketSource
	detector *CrashDetector
	logger   *slog.Logger

	snapshots map[string]domain.MarketSnapshot
	order     []string
}

// NewCrashReversion creates the crash-reversion strategy.
func NewCrashReversion(cfg CrashConfig, source domain.MarketSource, logger *slog.Logger) *CrashReversion {
	return &CrashReversion{
		cfg:       cfg,
		source:    source,
		detector:  NewCrashDetector(cfg),
		logger:    logger.With(slog.String("strategy", CrashName)),
		snapshots: make(map[string]domain.MarketSnapshot),
	}
}

// Name returns the strategy identifier.
func (c *CrashReversion) Name() string { return CrashName }

// Params returns the loop parameters.
func (c *CrashReversion) Params() Params { return c.cfg.Params }

// Detector exposes the evaluator state.
func (c *CrashReversion) Detector() *CrashDetector { return c.detector }

// MarketSlugs returns the up/down slugs around now: the previous interval,
// the current one and the next two.
func (c *CrashReversion) MarketSlugs(now time.Time) []string {
	window := int64(c.cfg.MarketWindow / time.Second)
	if window <= 0 {
		return nil
	}
	minutes := int64(c.cfg.MarketWindow / time.Minute)
	base := now.Unix() / window
	slugs := make([]string, 0, len(c.cfg.Assets)*4)
	for _, asset := range c.cfg.Assets {
		for offset := int64(-1); offset < 3; offset++ {
			end := (base + offset + 1) * window
			slugs = append(slugs, fmt.Sprintf("%s-updown-%dm-%d", asset, minutes, end))
		}
	}
	return slugs
}

// Refresh snapshots the live up/down markets and feeds asks to the detector.
func (c *CrashReversion) Refresh(ctx context.Context, now time.Time) error {
	instruments := c.source.ListInstruments(ctx, domain.InstrumentFilter{Slugs: c.MarketSlugs(now)})

	clear(c.snapshots)
	c.order = c.order[:0]
	for _, inst := range instruments {
		if ctx.Err() != nil {
			return nil
		}
		if inst.Closed {
			continue
		}
		snap, ok := takeSnapshot(ctx, c.source, inst, now)
		if !ok {
			continue
		}
		for i, o := range inst.Outcomes {
			c.detector.Observe(o.ID, snap.BestAsk[i], now)
		}
		c.snapshots[inst.ID] = snap
		c.order = append(c.order, inst.ID)
	}
	if n := c.detector.Expire(now); n > 0 {
		c.logger.DebugContext(ctx, "dropped idle outcomes", slog.Int("outcomes", n))
	}
	return nil
}

// Exits applies profit target, stop loss and the forced pre-settlement exit.
// Positions whose market is no longer listed as live are settled once the
// venue resolves them.
func (c *CrashReversion) Exits(ctx context.Context, book Book, now time.Time) []Exit {
	var exits []Exit
	var orphaned []domain.Position
	for _, pos := range book.OpenPositions() {
		snap, ok := c.snapshots[pos.InstrumentID]
		if !ok {
			if !pos.EndTime.IsZero() && now.After(pos.EndTime) {
				orphaned = append(orphaned, pos)
			}
			continue
		}
		if ex, ok := c.detector.ExitFor(pos, snap, now); ok {
			exits = append(exits, ex)
		}
	}
	if len(orphaned) > 0 {
		exits = append(exits, settleResolved(ctx, c.source, orphaned)...)
	}
	return exits
}

// OnExit starts the cooldown after a stop loss.
func (c *CrashReversion) OnExit(pos domain.Position, now time.Time) {
	if pos.ExitReason == domain.ExitStopLoss {
		c.detector.StartCooldown(pos.InstrumentID, now)
		c.logger.Info("stop loss cooldown started",
			slog.String("instrument", pos.Slug),
			slog.Duration("cooldown", c.cfg.Cooldown),
		)
	}
}

// Entries evaluates both outcomes of every market without an open position,
// taking at most one outcome per market.
func (c *CrashReversion) Entries(_ context.Context, book Book, now time.Time) []domain.Opportunity {
	var out []domain.Opportunity
	cash := book.Portfolio().Cash
	for _, id := range c.order {
		if book.HasOpen(id) {
			continue
		}
		snap := c.snapshots[id]
		for i := range snap.Instrument.Outcomes {
			opp, ok := c.detector.Evaluate(snap, i, cash, now)
			if !ok {
				continue
			}
			out = append(out, opp)
			if opp.Taken() {
				cash -= opp.Size
				break
			}
		}
	}
	return out
}
