package eventsink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func tradeEvent(id string) domain.Event {
	return domain.Event{Kind: domain.EventTrade, Trade: &domain.TradeRecord{ID: id, Strategy: "arb"}}
}

func decisionEvent(slug string) domain.Event {
	return domain.Event{Kind: domain.EventDecision, Decision: &domain.DecisionRecord{Slug: slug, Strategy: "arb"}}
}

type memStore struct {
	mu        sync.Mutex
	trades    []domain.TradeRecord
	decisions []domain.DecisionRecord
	snaps     []domain.PortfolioSnapshot
	logs      []domain.LogRecord
	failTrade bool
	batches   int
}

func (m *memStore) InsertTrades(_ context.Context, t []domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.failTrade {
		return errors.New("db down")
	}
	m.trades = append(m.trades, t...)
	return nil
}

func (m *memStore) InsertDecisions(_ context.Context, d []domain.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	m.decisions = append(m.decisions, d...)
	return nil
}

func (m *memStore) InsertSnapshots(_ context.Context, s []domain.PortfolioSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s...)
	return nil
}

func (m *memStore) InsertEvents(_ context.Context, l []domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l...)
	return nil
}

func TestBusFanOutNeverBlocks(t *testing.T) {
	b := NewBus()
	fast, cancelFast := b.Subscribe("fast", 10)
	defer cancelFast()
	_, cancelSlow := b.Subscribe("slow", 1)
	defer cancelSlow()

	for i := range 5 {
		b.Publish(tradeEvent(string(rune('a' + i))))
	}
	assert.Len(t, fast, 5)
	assert.Equal(t, map[string]uint64{"fast": 0, "slow": 4}, b.Dropped())

	cancelFast()
	cancelFast()
	b.Publish(tradeEvent("x"))

	b.Close()
	ch, _ := b.Subscribe("late", 1)
	_, open := <-ch
	assert.False(t, open)
}

func TestRecorderEvictsOldest(t *testing.T) {
	r := NewRecorder(&memStore{}, RecorderConfig{QueueSize: 3}, discard())
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		r.Enqueue(tradeEvent(id))
	}
	r.Enqueue(domain.Event{Kind: domain.EventBroadcast, Broadcast: &domain.BroadcastMessage{}})

	st := r.Stats()
	assert.Equal(t, 3, st.Queued)
	assert.Equal(t, uint64(2), st.Evicted)
	r.mu.Lock()
	assert.Equal(t, "3", r.queue[0].Trade.ID)
	r.mu.Unlock()
}

func TestRecorderFlushInBatches(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, RecorderConfig{BatchSize: 50}, discard())
	for i := range 120 {
		if i%2 == 0 {
			r.Enqueue(tradeEvent("t"))
		} else {
			r.Enqueue(decisionEvent("d"))
		}
	}
	r.Enqueue(domain.Event{Kind: domain.EventPortfolio, Snapshot: &domain.PortfolioSnapshot{Strategy: "arb"}})
	r.Enqueue(domain.Event{Kind: domain.EventLog, Log: &domain.LogRecord{Type: domain.LogStart}})

	require.NoError(t, r.Flush(t.Context()))
	assert.Len(t, store.trades, 60)
	assert.Len(t, store.decisions, 60)
	assert.Len(t, store.snaps, 1)
	assert.Len(t, store.logs, 1)
	assert.Equal(t, 6, store.batches, "3 batches with a trade and a decision group each")
	assert.Equal(t, RecorderStats{Written: 122}, r.Stats())
}

func TestRecorderRetriesOnlyFailedKinds(t *testing.T) {
	store := &memStore{failTrade: true}
	r := NewRecorder(store, RecorderConfig{}, discard())
	r.Enqueue(tradeEvent("t1"))
	r.Enqueue(decisionEvent("d1"))

	err := r.Flush(t.Context())
	require.Error(t, err)
	assert.Len(t, store.decisions, 1)
	st := r.Stats()
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, uint64(1), st.Failed)

	store.failTrade = false
	require.NoError(t, r.Flush(t.Context()))
	assert.Len(t, store.trades, 1)
	assert.Len(t, store.decisions, 1, "decisions are not written twice")
	assert.Zero(t, r.Stats().Queued)
}

func TestRecorderRunDrainsAtThreshold(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, RecorderConfig{FlushInterval: time.Hour, FlushAt: 10}, discard())
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go r.Run(ctx)

	for range 10 {
		r.Enqueue(tradeEvent("t"))
	}
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.trades) == 10
	}, time.Second, 5*time.Millisecond)
}

func TestSinkPublishesAndQueues(t *testing.T) {
	bus := NewBus()
	events, cancel := bus.Subscribe("test", 16)
	defer cancel()
	rec := NewRecorder(&memStore{}, RecorderConfig{}, discard())
	s := NewSink(bus, rec, discard())

	s.RecordTrade(domain.TradeRecord{Strategy: "arb", Action: domain.TradeOpen})
	s.RecordDecision(domain.DecisionRecord{Strategy: "arb", Verdict: domain.VerdictSkipped})
	s.RecordPortfolioSnapshot(domain.PortfolioSnapshot{Strategy: "arb"})
	s.RecordEvent("arb", domain.LevelInfo, domain.LogStart, "started", nil)
	s.Broadcast("arb", StateUpdate, map[string]int{"cycles": 1})

	require.Len(t, events, 5)
	first := <-events
	assert.NotEmpty(t, first.Trade.ID)
	assert.False(t, first.Trade.Timestamp.IsZero())
	assert.Equal(t, 4, rec.Stats().Queued, "broadcasts are not persisted")

	require.NoError(t, s.Flush(t.Context()))
	assert.Zero(t, rec.Stats().Queued)
}

type published struct {
	channel string
	payload []byte
}

type fakeSignals struct {
	mu      sync.Mutex
	pubs    []published
	streams []string
}

func (f *fakeSignals) Publish(_ context.Context, ch string, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, published{ch, p})
	return nil
}

func (f *fakeSignals) StreamAppend(_ context.Context, stream string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, stream)
	return nil
}

type fakeState struct{ m map[string][]byte }

func (f *fakeState) SetState(_ context.Context, k string, p []byte) error {
	f.m[k] = p
	return nil
}

func (f *fakeState) GetState(_ context.Context, k string) ([]byte, error) {
	return f.m[k], nil
}

func TestRelayRoutes(t *testing.T) {
	signals := &fakeSignals{}
	state := &fakeState{m: map[string][]byte{}}
	r := NewRelay(signals, state, discard())

	events := make(chan domain.Event, 8)
	events <- tradeEvent("t1")
	events <- decisionEvent("d1")
	events <- domain.Event{Kind: domain.EventLog, Log: &domain.LogRecord{Strategy: "arb", Level: domain.LevelInfo}}
	events <- domain.Event{Kind: domain.EventLog, Log: &domain.LogRecord{Strategy: "arb", Level: domain.LevelError}}
	events <- domain.Event{Kind: domain.EventBroadcast, Broadcast: &domain.BroadcastMessage{Strategy: "arb", Type: StateUpdate, Payload: map[string]int{"cycles": 3}}}
	close(events)

	require.NoError(t, r.Run(t.Context(), events))

	var channels []string
	for _, p := range signals.pubs {
		channels = append(channels, p.channel)
	}
	assert.Equal(t, []string{ChannelTrades, ChannelSignals, ChannelErrors, ChannelState}, channels)
	assert.Equal(t, []string{StreamTrades}, signals.streams)

	var env struct {
		Type     string         `json:"type"`
		Strategy string         `json:"strategy"`
		Data     map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(state.m["arb"], &env))
	assert.Equal(t, StateUpdate, env.Type)
	assert.Equal(t, 3, env.Data["cycles"])
}
