// Package feed adapts the venue and results clients to the fail-soft
// sources strategy loops read from: transient failures are logged and
// surface as empty or last-known data, never as errors.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// MarketLister lists instruments, e.g. *polymarket.GammaClient.
type MarketLister interface {
	ListMarkets(ctx context.Context, filter domain.InstrumentFilter) ([]domain.Instrument, error)
}

// BookFetcher fetches one book, e.g. *polymarket.ClobClient.
type BookFetcher interface {
	OrderBook(ctx context.Context, outcomeID string) (domain.OrderBook, error)
}

// BookStream serves pushed books, e.g. *polymarket.BookStream.
type BookStream interface {
	Subscribe(outcomeIDs ...string) error
	Book(outcomeID string, maxAge time.Duration, now time.Time) (domain.OrderBook, bool)
}

// MarketsOption configures Markets.
type MarketsOption func(*Markets)

// WithStream serves books from stream when one arrived within maxAge and
// subscribes every outcome read through OrderBook.
func WithStream(stream BookStream, maxAge time.Duration) MarketsOption {
	return func(m *Markets) {
		m.stream = stream
		m.maxAge = maxAge
	}
}

// WithStaleListings serves the last successful listing for a filter for up
// to ttl when the lister fails outright.
func WithStaleListings(ttl time.Duration) MarketsOption {
	return func(m *Markets) { m.staleTTL = ttl }
}

// WithMarketsClock overrides time.Now.
func WithMarketsClock(now func() time.Time) MarketsOption {
	return func(m *Markets) { m.now = now }
}

type listing struct {
	instruments []domain.Instrument
	at          time.Time
}

// Markets is the fail-soft domain.MarketSource.
type Markets struct {
	lister   MarketLister
	books    BookFetcher
	stream   BookStream
	maxAge   time.Duration
	staleTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]listing
}

var _ domain.MarketSource = (*Markets)(nil)

// NewMarkets creates a MarketSource over lister and books.
func NewMarkets(lister MarketLister, books BookFetcher, logger *slog.Logger, opts ...MarketsOption) *Markets {
	m := &Markets{
		lister: lister,
		books:  books,
		now:    time.Now,
		logger: logger.With(slog.String("component", "market_feed")),
		last:   make(map[string]listing),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ListInstruments returns whatever the lister produced. Per-item decode
// failures are logged at debug; a failed listing falls back to the last
// good one when stale listings are enabled.
func (m *Markets) ListInstruments(ctx context.Context, filter domain.InstrumentFilter) []domain.Instrument {
	insts, err := m.lister.ListMarkets(ctx, filter)
	key := filterKey(filter)

	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrMalformedData) && len(insts) > 0 {
			level = slog.LevelDebug
		}
		m.logger.Log(ctx, level, "listing instruments",
			slog.String("filter", key),
			slog.Int("instruments", len(insts)),
			slog.String("error", err.Error()),
		)
	}

	now := m.now()
	if len(insts) > 0 || err == nil {
		if m.staleTTL > 0 {
			m.mu.Lock()
			m.last[key] = listing{instruments: insts, at: now}
			m.mu.Unlock()
		}
		return insts
	}

	if m.staleTTL > 0 {
		m.mu.Lock()
		prev, ok := m.last[key]
		m.mu.Unlock()
		if ok && now.Sub(prev.at) <= m.staleTTL {
			m.logger.Info("serving stale listing", slog.String("filter", key), slog.Duration("age", now.Sub(prev.at)))
			return prev.instruments
		}
	}
	return nil
}

// OrderBook returns a fresh streamed book if available, else fetches one.
// A failed fetch yields an empty book, which prices the missing ask at 1.0.
func (m *Markets) OrderBook(ctx context.Context, outcomeID string) domain.OrderBook {
	now := m.now()
	if m.stream != nil {
		if book, ok := m.stream.Book(outcomeID, m.maxAge, now); ok {
			return book
		}
		if err := m.stream.Subscribe(outcomeID); err != nil {
			m.logger.Debug("stream subscribe", slog.String("outcome", outcomeID), slog.String("error", err.Error()))
		}
	}

	book, err := m.books.OrderBook(ctx, outcomeID)
	if err != nil {
		m.logger.Warn("fetching order book", slog.String("outcome", outcomeID), slog.String("error", err.Error()))
		return domain.OrderBook{OutcomeID: outcomeID, Timestamp: now}
	}
	return book
}

func filterKey(f domain.InstrumentFilter) string {
	var b strings.Builder
	b.WriteString(f.Tag)
	b.WriteByte('|')
	b.WriteString(strings.Join(f.Slugs, ","))
	if f.Active {
		b.WriteString("|active")
	}
	return b.String()
}
