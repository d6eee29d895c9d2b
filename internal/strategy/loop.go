package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/ledger"
)

const (
	historyCap   = 200
	historyKeep  = 100
	stateRecent  = 20
	flushTimeout = 5 * time.Second

	// costEpsilon and fillEpsilon absorb float noise in cash and share
	// comparisons.
	costEpsilon = 1e-9
	fillEpsilon = 1e-9
)

// Flusher is implemented by sinks that can drain queued records on demand.
type Flusher interface {
	Flush(ctx context.Context) error
}

// State is a point-in-time view of a Loop, safe to hand to other goroutines.
type State struct {
	Strategy      string               `json:"strategy"`
	Running       bool                 `json:"running"`
	Halted        bool                 `json:"halted"`
	Cycles        uint64               `json:"cycles"`
	Errors        uint64               `json:"errors"`
	LastError     string               `json:"last_error,omitempty"`
	Portfolio     domain.Portfolio     `json:"portfolio"`
	OpenPositions []domain.Position    `json:"open_positions"`
	Recent        []domain.Opportunity `json:"recent_opportunities"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Metrics observes loop activity. The default discards everything.
type Metrics interface {
	OrderPlaced(strategy string, side domain.OrderSide, ok bool, latency time.Duration)
	Decision(strategy string, verdict domain.Verdict)
	Rejected(strategy, reason string)
	Cycle(strategy string, err error, pf domain.Portfolio, open int)
}

type noopMetrics struct{}

func (noopMetrics) OrderPlaced(string, domain.OrderSide, bool, time.Duration) {}
func (noopMetrics) Decision(string, domain.Verdict) {}
func (noopMetrics) Rejected(string, string) {}
func (noopMetrics) Cycle(string, error, domain.Portfolio, int) {}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLocker makes the loop hold a distributed lock for its strategy while
// running, so a second process cannot drive the same ledger.
func WithLocker(lm domain.LockManager) LoopOption {
	return func(l *Loop) { l.locker = lm }
}

// WithClock overrides time.Now for cycle timestamps.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) { l.now = now }
}

// WithMetrics reports orders, decisions and cycles to m.
func WithMetrics(m Metrics) LoopOption {
	return func(l *Loop) {
		if m != nil {
			l.metrics = m
		}
	}
}

// Loop drives one Strategy: fetch, evaluate, admit, execute, record, sleep.
// A Loop owns its ledger; nothing else mutates it.
type Loop struct {
	strategy  Strategy
	params    Params
	ledger    *ledger.Ledger
	gateway   domain.ExecutionGateway
	sink      domain.EventSink
	admission Admission
	locker    domain.LockManager
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	halted   atomic.Bool

	lastSnapshot  time.Time
	lastBroadcast time.Time
	history       []domain.Opportunity

	mu    sync.RWMutex
	state State
}

// NewLoop builds a Loop around s with a fresh ledger funded from
// s.Params().StartingCapital.
func NewLoop(s Strategy, gw domain.ExecutionGateway, sink domain.EventSink, logger *slog.Logger, opts ...LoopOption) *Loop {
	params := s.Params().withDefaults()
	l := &Loop{
		strategy: s,
		params:   params,
		gateway:  gw,
		sink:     sink,
		admission: Admission{
			MaxPositions: params.MaxPositions,
			MinCash:      params.MinCash,
			MaxDailyLoss: params.MaxDailyLoss,
		},
		metrics: noopMetrics{},
		logger:  logger.With(slog.String("component", "strategy_loop"), slog.String("strategy", s.Name())),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.ledger = ledger.New(s.Name(), params.StartingCapital, ledger.WithClock(l.now))
	l.state = State{Strategy: s.Name(), Portfolio: l.ledger.Portfolio()}
	return l
}

// Name returns the strategy name.
func (l *Loop) Name() string { return l.strategy.Name() }

// Stop requests cancellation. It is idempotent and does not wait.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Halt blocks new entries until Resume. Exits keep running.
func (l *Loop) Halt() { l.halted.Store(true) }

// Resume lifts a Halt.
func (l *Loop) Resume() { l.halted.Store(false) }

// State returns the state published at the end of the last cycle.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Run executes cycles until ctx is cancelled or Stop is called. A failing
// cycle never ends the loop; it is recorded and followed by a longer sleep.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if l.locker != nil {
		unlock, err := l.acquireLock(ctx)
		if err != nil {
			return nil
		}
		defer unlock()
	}

	name := l.strategy.Name()
	l.setRunning(true)
	l.logger.InfoContext(ctx, "strategy loop started",
		slog.Duration("interval", l.params.PollInterval),
		slog.Float64("capital", l.params.StartingCapital),
	)
	l.sink.RecordEvent(name, domain.LevelInfo, domain.LogStart, "strategy started", nil)
	defer l.shutdown()

	for {
		if ctx.Err() != nil {
			return nil
		}

		wait := l.params.PollInterval
		if err := l.Step(ctx); err != nil {
			wait = l.params.PollInterval * time.Duration(l.params.ErrorBackoff)
			l.recordError(err)
			l.logger.ErrorContext(ctx, "cycle failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", wait),
			)
			l.sink.RecordEvent(name, domain.LevelError, domain.LogError, err.Error(), nil)
		}

		if l.locker != nil {
			if err := l.locker.Refresh(ctx, l.lockKey(), l.lockTTL()); err != nil && ctx.Err() == nil {
				l.logger.WarnContext(ctx, "lock refresh failed", slog.String("error", err.Error()))
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Step runs a single cycle. Panics inside the strategy are converted to
// errors so Run can back off and continue.
func (l *Loop) Step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy: %s: panic: %v", l.strategy.Name(), r)
		}
		l.metrics.Cycle(l.strategy.Name(), err, l.ledger.Portfolio(), l.ledger.OpenCount())
	}()

	now := l.now()
	if err := l.strategy.Refresh(ctx, now); err != nil {
		return fmt.Errorf("strategy: %s: refresh: %w", l.strategy.Name(), err)
	}

	l.syncFills(ctx)

	for _, ex := range l.strategy.Exits(ctx, l.ledger, now) {
		if ctx.Err() != nil {
			return nil
		}
		l.applyExit(ctx, ex, now)
	}

	for _, opp := range l.strategy.Entries(ctx, l.ledger, now) {
		if ctx.Err() != nil {
			break
		}
		if opp.Taken() {
			opp = l.admit(opp)
		}
		if opp.Taken() {
			opp = l.execute(ctx, opp, now)
		}
		l.recordDecision(opp, now)
	}

	l.periodic(now)
	l.publishState(now, true)
	return nil
}

func (l *Loop) admit(opp domain.Opportunity) domain.Opportunity {
	var reason string
	if l.halted.Load() {
		reason = domain.ReasonRiskHalt
	} else {
		reason = l.admission.Check(l.ledger, opp.InstrumentID)
	}
	if reason == "" && opp.Cost() > l.ledger.Portfolio().Cash+costEpsilon {
		reason = domain.ReasonInsufficientCash
	}
	if reason == "" {
		return opp
	}
	l.metrics.Rejected(l.strategy.Name(), reason)
	return opp.Skip(reason)
}

// place sends req to the gateway and reports its outcome and latency.
func (l *Loop) place(ctx context.Context, req domain.OrderRequest) domain.OrderResult {
	start := time.Now()
	res := l.gateway.PlaceLimitOrder(ctx, req)
	l.metrics.OrderPlaced(req.Strategy, req.Side, res.Success, time.Since(start))
	return res
}

// execute places every leg and opens the position. Nothing is debited
// unless every placement succeeded. admit has already checked the cost
// against cash, so the ledger only rejects when fills priced above the
// limit.
func (l *Loop) execute(ctx context.Context, opp domain.Opportunity, now time.Time) domain.Opportunity {
	name := l.strategy.Name()
	legs := make([]domain.Leg, 0, len(opp.Legs))

	for _, lo := range opp.Legs {
		res := l.place(ctx, domain.OrderRequest{
			OutcomeID: lo.OutcomeID,
			Side:      lo.Side,
			Price:     lo.Price,
			Size:      lo.Quantity,
			Maker:     lo.Maker,
			Strategy:  name,
		})
		if !res.Success {
			l.unwind(ctx, legs)
			l.logger.WarnContext(ctx, "order placement failed",
				slog.String("instrument", opp.Slug),
				slog.String("outcome", lo.OutcomeID),
				slog.String("error", res.Error),
			)
			l.sink.RecordEvent(name, domain.LevelAlert, domain.LogError,
				fmt.Sprintf("order failed on %s: %s", opp.Slug, res.Error),
				map[string]any{"instrument_id": opp.InstrumentID, "outcome_id": lo.OutcomeID})
			return opp.Skip(domain.ReasonExecutionFailed)
		}

		entry := lo.Price
		if res.Filled > 0 && res.AvgPrice > 0 {
			entry = res.AvgPrice
		}
		legs = append(legs, domain.Leg{
			OutcomeID:   lo.OutcomeID,
			OutcomeName: lo.OutcomeName,
			EntryPrice:  entry,
			Quantity:    lo.Quantity,
			Filled:      min(res.Filled, lo.Quantity),
			OrderID:     res.OrderID,
		})
	}

	pos, err := l.ledger.Open(domain.PositionSpec{
		Strategy:       name,
		InstrumentID:   opp.InstrumentID,
		Slug:           opp.Slug,
		Legs:           legs,
		ExpectedPayout: opp.ExpectedPayout,
		ExpectedPnL:    opp.ExpectedPnL,
		EndTime:        opp.EndTime,
	})
	if err != nil {
		l.unwind(ctx, legs)
		l.logger.WarnContext(ctx, "ledger rejected entry",
			slog.String("instrument", opp.Slug),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, domain.ErrInsufficientCapital) {
			return opp.Skip(domain.ReasonInsufficientCash)
		}
		return opp.Skip(domain.ReasonExecutionFailed)
	}

	for _, leg := range pos.Legs {
		l.sink.RecordTrade(domain.TradeRecord{
			ID:           uuid.New().String(),
			Strategy:     name,
			Action:       domain.TradeOpen,
			PositionID:   pos.ID,
			InstrumentID: pos.InstrumentID,
			Slug:         pos.Slug,
			OutcomeID:    leg.OutcomeID,
			OutcomeName:  leg.OutcomeName,
			Side:         domain.OrderSideBuy,
			Price:        leg.EntryPrice,
			Quantity:     leg.Quantity,
			Value:        leg.Cost(),
			Reason:       opp.Reason,
			Meta:         opp.Meta,
			Timestamp:    now,
		})
	}
	l.logger.InfoContext(ctx, "position opened",
		slog.String("position", pos.ID),
		slog.String("instrument", pos.Slug),
		slog.Float64("cost", pos.Cost),
		slog.Float64("edge", opp.Edge),
	)
	return opp
}

// unwind cancels resting orders placed for a failed entry. Filled taker
// legs cannot be recalled; they are reported for manual follow-up.
func (l *Loop) unwind(ctx context.Context, legs []domain.Leg) {
	for _, leg := range legs {
		if leg.Filled > 0 {
			l.sink.RecordEvent(l.strategy.Name(), domain.LevelAlert, domain.LogError,
				"entry aborted with a filled leg",
				map[string]any{"outcome_id": leg.OutcomeID, "filled": leg.Filled, "order_id": leg.OrderID})
		}
		if leg.OrderID != "" && leg.Unfilled() > 0 {
			l.gateway.Cancel(ctx, leg.OrderID)
		}
	}
}

func (l *Loop) applyExit(ctx context.Context, ex Exit, now time.Time) {
	pos, ok := l.ledger.Position(ex.PositionID)
	if !ok {
		return
	}
	name := l.strategy.Name()

	var (
		pnl    float64
		err    error
		action domain.TradeAction
		price  float64
	)
	switch ex.Kind {
	case ExitClose:
		price = ex.Price
		if len(pos.Legs) == 1 && pos.Legs[0].Filled > 0 {
			leg := pos.Legs[0]
			sold, avg, ok := l.sell(ctx, pos, leg.OutcomeID, leg.Filled, ex)
			if !ok {
				return
			}
			if avg > 0 {
				price = avg
			}
			if sold < leg.Filled-fillEpsilon {
				l.reduce(ctx, pos, sold, price, ex, now)
				return
			}
		}
		l.cancelResting(ctx, pos)
		action = domain.TradeClose
		pnl, err = l.ledger.Close(pos.ID, price, ex.Reason)
	case ExitSettle:
		l.cancelResting(ctx, pos)
		action = domain.TradeSettle
		pnl, err = l.ledger.Settle(pos.ID, ex.WinningOutcome)
	default:
		return
	}
	if err != nil {
		l.logger.ErrorContext(ctx, "ledger exit failed",
			slog.String("position", pos.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	done, _ := l.lastClosed(pos.ID)
	leg := pos.Legs[0]
	l.sink.RecordTrade(domain.TradeRecord{
		ID:           uuid.New().String(),
		Strategy:     name,
		Action:       action,
		PositionID:   pos.ID,
		InstrumentID: pos.InstrumentID,
		Slug:         pos.Slug,
		OutcomeID:    leg.OutcomeID,
		OutcomeName:  leg.OutcomeName,
		Side:         domain.OrderSideSell,
		Price:        done.ExitPrice,
		Quantity:     pos.FilledQuantity(),
		Value:        pos.Cost + pnl,
		PnL:          pnl,
		Reason:       done.ExitReason,
		Timestamp:    now,
	})
	if action == domain.TradeSettle {
		l.sink.RecordEvent(name, domain.LevelTrade, domain.LogSettlement,
			fmt.Sprintf("%s settled, winner %s, pnl %.2f", pos.Slug, ex.WinningOutcome, pnl),
			map[string]any{"position_id": pos.ID})
	}
	l.logger.InfoContext(ctx, "position exited",
		slog.String("position", pos.ID),
		slog.String("instrument", pos.Slug),
		slog.String("reason", done.ExitReason),
		slog.Float64("pnl", pnl),
	)

	if obs, ok := l.strategy.(ExitObserver); ok {
		obs.OnExit(done, now)
	}
}

// sell places the exit order for qty shares and returns how many sold. A
// sell that rests is cancelled and its final fill read back; the unsold
// shares stay in the position for a later exit.
func (l *Loop) sell(ctx context.Context, pos domain.Position, outcomeID string, qty float64, ex Exit) (sold, avg float64, ok bool) {
	name := l.strategy.Name()
	res := l.place(ctx, domain.OrderRequest{
		OutcomeID: outcomeID,
		Side:      domain.OrderSideSell,
		Price:     ex.Price,
		Size:      qty,
		Strategy:  name,
	})
	if !res.Success {
		l.logger.WarnContext(ctx, "exit order failed, position stays open",
			slog.String("position", pos.ID),
			slog.String("reason", ex.Reason),
			slog.String("error", res.Error),
		)
		l.sink.RecordEvent(name, domain.LevelAlert, domain.LogError,
			fmt.Sprintf("exit failed on %s: %s", pos.Slug, res.Error),
			map[string]any{"position_id": pos.ID, "reason": ex.Reason})
		return 0, 0, false
	}

	sold, avg = min(res.Filled, qty), res.AvgPrice
	if sold < qty-fillEpsilon && res.OrderID != "" {
		l.gateway.Cancel(ctx, res.OrderID)
		if st, err := l.gateway.OrderStatus(ctx, res.OrderID); err == nil && st.FilledAmount > sold {
			sold = min(st.FilledAmount, qty)
			if st.AvgPrice > 0 {
				avg = st.AvgPrice
			}
		}
	}
	if sold <= fillEpsilon {
		l.logger.WarnContext(ctx, "exit order unfilled, position stays open",
			slog.String("position", pos.ID),
			slog.String("reason", ex.Reason),
			slog.String("order", res.OrderID),
		)
		return 0, 0, false
	}
	return sold, avg, true
}

// reduce books a partial exit. The position stays OPEN with the unsold
// shares.
func (l *Loop) reduce(ctx context.Context, pos domain.Position, sold, price float64, ex Exit, now time.Time) {
	name := l.strategy.Name()
	pnl, err := l.ledger.Reduce(pos.ID, sold, price, ex.Reason)
	if err != nil {
		l.logger.ErrorContext(ctx, "ledger reduce failed",
			slog.String("position", pos.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	leg := pos.Legs[0]
	l.sink.RecordTrade(domain.TradeRecord{
		ID:           uuid.New().String(),
		Strategy:     name,
		Action:       domain.TradeClose,
		PositionID:   pos.ID,
		InstrumentID: pos.InstrumentID,
		Slug:         pos.Slug,
		OutcomeID:    leg.OutcomeID,
		OutcomeName:  leg.OutcomeName,
		Side:         domain.OrderSideSell,
		Price:        price,
		Quantity:     sold,
		Value:        sold * price,
		PnL:          pnl,
		Reason:       ex.Reason,
		Meta:         map[string]any{"partial": true, "remaining": leg.Filled - sold},
		Timestamp:    now,
	})
	l.logger.InfoContext(ctx, "position reduced",
		slog.String("position", pos.ID),
		slog.String("instrument", pos.Slug),
		slog.Float64("sold", sold),
		slog.Float64("pnl", pnl),
	)
}

func (l *Loop) lastClosed(id string) (domain.Position, bool) {
	closed := l.ledger.Closed()
	for i := len(closed) - 1; i >= 0; i-- {
		if closed[i].ID == id {
			return closed[i], true
		}
	}
	return domain.Position{}, false
}

func (l *Loop) cancelResting(ctx context.Context, pos domain.Position) {
	for _, leg := range pos.Legs {
		if leg.OrderID != "" && leg.Unfilled() > 0 {
			l.gateway.Cancel(ctx, leg.OrderID)
		}
	}
}

// syncFills polls resting orders and folds fill progress into the ledger.
func (l *Loop) syncFills(ctx context.Context) {
	for _, pos := range l.ledger.OpenPositions() {
		if !pos.HasUnfilled() {
			continue
		}
		for i, leg := range pos.Legs {
			if leg.OrderID == "" || leg.Unfilled() == 0 {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			st, err := l.gateway.OrderStatus(ctx, leg.OrderID)
			if err != nil {
				l.logger.DebugContext(ctx, "order status unavailable",
					slog.String("order", leg.OrderID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if st.FilledAmount <= leg.Filled {
				continue
			}
			if err := l.ledger.ApplyFill(pos.ID, i, st.FilledAmount, st.AvgPrice); err != nil {
				l.logger.WarnContext(ctx, "fill update rejected",
					slog.String("position", pos.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			l.sink.RecordTrade(domain.TradeRecord{
				ID:           uuid.New().String(),
				Strategy:     l.strategy.Name(),
				Action:       domain.TradeFill,
				PositionID:   pos.ID,
				InstrumentID: pos.InstrumentID,
				Slug:         pos.Slug,
				OutcomeID:    leg.OutcomeID,
				OutcomeName:  leg.OutcomeName,
				Side:         domain.OrderSideBuy,
				Price:        st.AvgPrice,
				Quantity:     st.FilledAmount - leg.Filled,
				Value:        (st.FilledAmount - leg.Filled) * st.AvgPrice,
				Timestamp:    l.now(),
			})
		}
	}
}

func (l *Loop) recordDecision(opp domain.Opportunity, now time.Time) {
	l.history = append(l.history, opp)
	if len(l.history) > historyCap {
		l.history = append([]domain.Opportunity(nil), l.history[len(l.history)-historyKeep:]...)
	}
	l.metrics.Decision(l.strategy.Name(), opp.Verdict)
	l.sink.RecordDecision(domain.DecisionRecord{
		Strategy:     l.strategy.Name(),
		Verdict:      opp.Verdict,
		InstrumentID: opp.InstrumentID,
		Slug:         opp.Slug,
		Question:     opp.Question,
		Reason:       opp.Reason,
		Price:        opp.Price(),
		Edge:         opp.Edge,
		Size:         opp.Size,
		Meta:         opp.Meta,
		Timestamp:    now,
	})
}

func (l *Loop) periodic(now time.Time) {
	if now.Sub(l.lastSnapshot) >= l.params.SnapshotInterval {
		l.sink.RecordPortfolioSnapshot(l.ledger.Snapshot())
		l.lastSnapshot = now
	}
	if now.Sub(l.lastBroadcast) >= l.params.BroadcastInterval {
		l.publishState(now, false)
		l.sink.Broadcast(l.strategy.Name(), "state_update", l.State())
		l.lastBroadcast = now
	}
}

func (l *Loop) publishState(now time.Time, countCycle bool) {
	recent := l.history
	if len(recent) > stateRecent {
		recent = recent[len(recent)-stateRecent:]
	}
	recent = append([]domain.Opportunity(nil), recent...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if countCycle {
		l.state.Cycles++
	}
	l.state.Halted = l.halted.Load()
	l.state.Portfolio = l.ledger.Portfolio()
	l.state.OpenPositions = l.ledger.OpenPositions()
	l.state.Recent = recent
	l.state.UpdatedAt = now
}

func (l *Loop) setRunning(running bool) {
	l.mu.Lock()
	l.state.Running = running
	l.mu.Unlock()
}

func (l *Loop) recordError(err error) {
	l.mu.Lock()
	l.state.Errors++
	l.state.LastError = err.Error()
	l.mu.Unlock()
}

// shutdown records the final state and flushes the sink. ctx is already
// cancelled here, so the flush gets its own deadline.
func (l *Loop) shutdown() {
	name := l.strategy.Name()
	now := l.now()

	l.sink.RecordPortfolioSnapshot(l.ledger.Snapshot())
	l.sink.RecordEvent(name, domain.LevelInfo, domain.LogStop, "strategy stopped", nil)
	l.setRunning(false)
	l.publishState(now, false)
	l.sink.Broadcast(name, "state_update", l.State())

	if f, ok := l.sink.(Flusher); ok {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := f.Flush(ctx); err != nil {
			l.logger.Warn("final flush failed", slog.String("error", err.Error()))
		}
	}
	l.logger.Info("strategy loop stopped")
}

func (l *Loop) lockKey() string { return "strategy:" + l.strategy.Name() }

func (l *Loop) lockTTL() time.Duration {
	return max(30*time.Second, 3*l.params.PollInterval*time.Duration(l.params.ErrorBackoff))
}

// acquireLock blocks until the strategy lock is held or ctx ends.
func (l *Loop) acquireLock(ctx context.Context) (func(), error) {
	for {
		unlock, err := l.locker.Acquire(ctx, l.lockKey(), l.lockTTL())
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			l.logger.WarnContext(ctx, "lock acquire failed", slog.String("error", err.Error()))
		} else {
			l.logger.InfoContext(ctx, "strategy lock held elsewhere, waiting")
		}
		timer := time.NewTimer(l.params.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
