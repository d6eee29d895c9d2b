package strategy

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/executor"
)

// randomSource generates books from a seeded random walk per outcome.
// Listed markets resolve and are replaced over time; up/down markets are
// created on request and resolve once their end time passes.
type randomSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	now    time.Time
	prices map[string]float64
	listed []*domain.Instrument
	bySlug map[string]*domain.Instrument
	next   int
}

func newRandomSource(seed int64, markets int) *randomSource {
	src := &randomSource{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64),
		bySlug: make(map[string]*domain.Instrument),
	}
	for range markets {
		src.addMarket()
	}
	return src
}

func (s *randomSource) addMarket() {
	s.next++
	id := fmt.Sprintf("r%d", s.next)
	inst := binary(id, "random-market-"+id)
	s.listed = append(s.listed, &inst)
	s.bySlug[inst.Slug] = &inst
}

func (s *randomSource) resolve(inst *domain.Instrument) {
	inst.Closed = true
	inst.Active = false
	if s.rng.Intn(2) == 0 {
		inst.Prices = [2]float64{1, 0}
	} else {
		inst.Prices = [2]float64{0, 1}
	}
}

// advance moves the clock and occasionally resolves a listed market,
// replacing it with a fresh one.
func (s *randomSource) advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	if s.rng.Float64() < 0.05 {
		i := s.rng.Intn(len(s.listed))
		s.resolve(s.listed[i])
		s.listed = append(s.listed[:i], s.listed[i+1:]...)
		s.addMarket()
	}
}

func (s *randomSource) ListInstruments(_ context.Context, filter domain.InstrumentFilter) []domain.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(filter.Slugs) == 0 {
		out := make([]domain.Instrument, 0, len(s.listed))
		for _, inst := range s.listed {
			out = append(out, *inst)
		}
		return out
	}
	var out []domain.Instrument
	for _, slug := range filter.Slugs {
		inst, ok := s.bySlug[slug]
		if !ok {
			inst = s.upDown(slug)
			if inst == nil {
				continue
			}
		}
		if !inst.Closed && !inst.EndTime.IsZero() && s.now.After(inst.EndTime) {
			s.resolve(inst)
		}
		out = append(out, *inst)
	}
	return out
}

func (s *randomSource) upDown(slug string) *domain.Instrument {
	i := strings.LastIndex(slug, "-")
	end, err := strconv.ParseInt(slug[i+1:], 10, 64)
	if i < 0 || err != nil {
		return nil
	}
	inst := binary(slug, slug)
	inst.EndTime = time.Unix(end, 0)
	s.bySlug[slug] = &inst
	return &inst
}

func (s *randomSource) OrderBook(_ context.Context, outcomeID string) domain.OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prices[outcomeID]
	switch {
	case !ok:
		p = 0.05 + 0.9*s.rng.Float64()
	case s.rng.Float64() < 0.05:
		p = 0.05 + 0.13*s.rng.Float64()
	default:
		p += (s.rng.Float64() - 0.45) * 0.06
	}
	p = min(max(p, 0.02), 0.97)
	s.prices[outcomeID] = p
	return book(outcomeID, p-0.01, p, 50+s.rng.Float64()*5000)
}

func TestSimulatedRandomBooks(t *testing.T) {
	src := newRandomSource(42, 8)
	now := time.Unix(1_700_000_100, 0)
	clock := func() time.Time { return now }

	crashCfg := DefaultCrashConfig()
	crashCfg.Assets = []string{"btc", "eth"}

	sink := &recordingSink{}
	gw := executor.New(executor.NewPaperGateway(discard()), discard(), executor.WithClock(clock))
	loops := []*Loop{
		NewLoop(NewArbitrage(DefaultArbitrageConfig(), src, discard()), gw, sink, discard(), WithClock(clock)),
		NewLoop(NewCrashReversion(crashCfg, src, discard()), gw, sink, discard(), WithClock(clock)),
	}

	for step := range 1000 {
		src.advance(now)
		for _, l := range loops {
			require.NoError(t, l.Step(t.Context()))

			st := l.State()
			pf := st.Portfolio
			require.GreaterOrEqual(t, pf.Cash, -1e-9, "%s step %d", st.Strategy, step)
			require.True(t, pf.Balanced(1e-6), "%s step %d: %+v", st.Strategy, step, pf)
			for _, pos := range st.OpenPositions {
				require.Equal(t, domain.PositionStatusOpen, pos.Status)
			}
		}
		now = now.Add(5 * time.Second)
	}

	decided := make(map[string]int)
	for _, d := range sink.decisions {
		decided[d.Strategy]++
	}
	var opened, exited int
	for _, tr := range sink.trades {
		switch tr.Action {
		case domain.TradeOpen:
			opened++
		case domain.TradeSettle, domain.TradeClose:
			exited++
		}
	}
	assert.Positive(t, decided[ArbitrageName])
	assert.Positive(t, decided[CrashName], "crashes were detected")
	assert.Positive(t, opened)
	assert.Positive(t, exited, "positions were exited")
	for _, l := range loops {
		assert.Equal(t, uint64(1000), l.State().Cycles)
	}
}
