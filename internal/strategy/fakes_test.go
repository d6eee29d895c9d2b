package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func binary(id, slug string) domain.Instrument {
	return domain.Instrument{
		ID:       id,
		Slug:     slug,
		Question: slug + "?",
		Outcomes: [2]domain.Outcome{{ID: id + "-a", Name: "Yes"}, {ID: id + "-b", Name: "No"}},
		Active:   true,
	}
}

func book(outcomeID string, bid, ask, size float64) domain.OrderBook {
	b := domain.OrderBook{OutcomeID: outcomeID}
	if bid > 0 {
		b.Bids = []domain.PriceLevel{{Price: bid, Size: size}}
	}
	if ask > 0 {
		b.Asks = []domain.PriceLevel{{Price: ask, Size: size}}
	}
	return b
}

// fakeSource serves fixed instruments and books. Slug filters are honored.
type fakeSource struct {
	mu          sync.Mutex
	instruments []domain.Instrument
	books       map[string]domain.OrderBook
	listCalls   int
}

func newFakeSource(instruments ...domain.Instrument) *fakeSource {
	return &fakeSource{instruments: instruments, books: make(map[string]domain.OrderBook)}
}

func (f *fakeSource) setBook(b domain.OrderBook) {
	f.mu.Lock()
	f.books[b.OutcomeID] = b
	f.mu.Unlock()
}

func (f *fakeSource) ListInstruments(_ context.Context, filter domain.InstrumentFilter) []domain.Instrument {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if len(filter.Slugs) == 0 {
		return append([]domain.Instrument(nil), f.instruments...)
	}
	want := make(map[string]bool, len(filter.Slugs))
	for _, s := range filter.Slugs {
		want[s] = true
	}
	var out []domain.Instrument
	for _, inst := range f.instruments {
		if want[inst.Slug] {
			out = append(out, inst)
		}
	}
	return out
}

func (f *fakeSource) OrderBook(_ context.Context, outcomeID string) domain.OrderBook {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[outcomeID]
}

// recordingSink keeps everything it is handed.
type recordingSink struct {
	mu        sync.Mutex
	trades    []domain.TradeRecord
	decisions []domain.DecisionRecord
	snapshots []domain.PortfolioSnapshot
	events    []string
}

func (s *recordingSink) RecordTrade(rec domain.TradeRecord) {
	s.mu.Lock()
	s.trades = append(s.trades, rec)
	s.mu.Unlock()
}

func (s *recordingSink) RecordDecision(rec domain.DecisionRecord) {
	s.mu.Lock()
	s.decisions = append(s.decisions, rec)
	s.mu.Unlock()
}

func (s *recordingSink) RecordPortfolioSnapshot(snap domain.PortfolioSnapshot) {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

func (s *recordingSink) RecordEvent(_ string, level domain.Level, eventType, _ string, _ map[string]any) {
	s.mu.Lock()
	s.events = append(s.events, string(level)+":"+eventType)
	s.mu.Unlock()
}

func (s *recordingSink) Broadcast(string, string, any) {}

func (s *recordingSink) reasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.decisions))
	for i, d := range s.decisions {
		out[i] = d.Reason
	}
	return out
}
