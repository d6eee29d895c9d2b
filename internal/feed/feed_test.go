package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeLister struct {
	insts []domain.Instrument
	err   error
	calls int
}

func (f *fakeLister) ListMarkets(context.Context, domain.InstrumentFilter) ([]domain.Instrument, error) {
	f.calls++
	return f.insts, f.err
}

type fakeBooks struct {
	book  domain.OrderBook
	err   error
	calls int
}

func (f *fakeBooks) OrderBook(_ context.Context, id string) (domain.OrderBook, error) {
	f.calls++
	b := f.book
	b.OutcomeID = id
	return b, f.err
}

type fakeStream struct {
	books      map[string]domain.OrderBook
	subscribed []string
}

func (f *fakeStream) Subscribe(ids ...string) error {
	f.subscribed = append(f.subscribed, ids...)
	return nil
}

func (f *fakeStream) Book(id string, _ time.Duration, _ time.Time) (domain.OrderBook, bool) {
	b, ok := f.books[id]
	return b, ok
}

func TestListInstrumentsPartialFailure(t *testing.T) {
	lister := &fakeLister{
		insts: []domain.Instrument{{ID: "a"}},
		err:   fmt.Errorf("decode: %w", domain.ErrMalformedData),
	}
	m := NewMarkets(lister, &fakeBooks{}, discard())
	got := m.ListInstruments(t.Context(), domain.InstrumentFilter{})
	assert.Equal(t, []domain.Instrument{{ID: "a"}}, got)
}

func TestListInstrumentsFailsSoft(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	lister := &fakeLister{insts: []domain.Instrument{{ID: "a"}}}
	m := NewMarkets(lister, &fakeBooks{}, discard(), WithStaleListings(time.Minute), WithMarketsClock(clock))

	filter := domain.InstrumentFilter{Tag: "sports", Active: true}
	require.Len(t, m.ListInstruments(t.Context(), filter), 1)

	lister.insts, lister.err = nil, errors.New("connection refused")
	now = now.Add(30 * time.Second)
	assert.Len(t, m.ListInstruments(t.Context(), filter), 1, "last listing is served while fresh")

	now = now.Add(time.Minute)
	assert.Empty(t, m.ListInstruments(t.Context(), filter))

	plain := NewMarkets(lister, &fakeBooks{}, discard())
	assert.Empty(t, plain.ListInstruments(t.Context(), filter))
}

func TestOrderBookFailsSoft(t *testing.T) {
	books := &fakeBooks{err: domain.ErrRateLimited}
	m := NewMarkets(&fakeLister{}, books, discard())

	b := m.OrderBook(t.Context(), "tok")
	assert.Equal(t, "tok", b.OutcomeID)
	assert.True(t, b.Empty())
	assert.Equal(t, 1.0, b.BestAsk().Price)
}

func TestOrderBookPrefersStream(t *testing.T) {
	streamed := domain.OrderBook{OutcomeID: "hot", Asks: []domain.PriceLevel{{Price: 0.12, Size: 10}}}
	stream := &fakeStream{books: map[string]domain.OrderBook{"hot": streamed}}
	books := &fakeBooks{book: domain.OrderBook{Asks: []domain.PriceLevel{{Price: 0.5, Size: 1}}}}
	m := NewMarkets(&fakeLister{}, books, discard(), WithStream(stream, 5*time.Second))

	assert.Equal(t, streamed, m.OrderBook(t.Context(), "hot"))
	assert.Zero(t, books.calls)

	cold := m.OrderBook(t.Context(), "cold")
	assert.Equal(t, 0.5, cold.BestAsk().Price)
	assert.Equal(t, 1, books.calls)
	assert.Equal(t, []string{"cold"}, stream.subscribed)
}

type fakeGames struct {
	games []domain.GameResult
	err   error
}

func (f fakeGames) FinishedGames(context.Context, domain.League) ([]domain.GameResult, error) {
	return f.games, f.err
}

func TestResultsFailSoft(t *testing.T) {
	r := NewResults(fakeGames{err: domain.ErrTransientIO}, discard())
	assert.Empty(t, r.FinishedGames(t.Context(), domain.LeagueNBA))

	r = NewResults(fakeGames{games: []domain.GameResult{{ID: "1"}}, err: domain.ErrMalformedData}, discard())
	assert.Len(t, r.FinishedGames(t.Context(), domain.LeagueNBA), 1)
}
