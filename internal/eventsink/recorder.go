package eventsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

const (
	DefaultQueueSize     = 1000
	DefaultFlushInterval = 5 * time.Second
	DefaultFlushAt       = 100
	DefaultBatchSize     = 50
)

// RecorderConfig tunes batching. Zero fields take the defaults.
type RecorderConfig struct {
	QueueSize     int
	FlushInterval time.Duration
	FlushAt       int
	BatchSize     int
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.FlushAt <= 0 {
		c.FlushAt = DefaultFlushAt
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// RecorderStats counts queue traffic.
type RecorderStats struct {
	Queued  int    `json:"queued"`
	Written uint64 `json:"written"`
	Evicted uint64 `json:"evicted"`
	Failed  uint64 `json:"failed_batches"`
}

// Recorder queues persistent events and writes them to a RecordStore in
// batches. The queue is bounded; when full the oldest event is evicted.
// Records whose insert fails go back to the head of the queue and are
// retried on the next drain.
type Recorder struct {
	store  domain.RecordStore
	cfg    RecorderConfig
	logger *slog.Logger

	mu      sync.Mutex
	queue   []domain.Event
	written uint64
	evicted uint64
	failed  uint64

	wake    chan struct{}
	drainMu sync.Mutex
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store domain.RecordStore, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	cfg = cfg.withDefaults()
	return &Recorder{
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "recorder")),
		queue:  make([]domain.Event, 0, cfg.QueueSize),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue adds ev without blocking. Broadcast events are ignored.
func (r *Recorder) Enqueue(ev domain.Event) {
	if !ev.Persistent() {
		return
	}
	r.mu.Lock()
	if len(r.queue) >= r.cfg.QueueSize {
		r.queue = r.queue[1:]
		r.evicted++
	}
	r.queue = append(r.queue, ev)
	full := len(r.queue) >= r.cfg.FlushAt
	r.mu.Unlock()

	if full {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Run drains on the flush interval, or early when the queue reaches the
// flush threshold, until ctx is cancelled. Records still queued at that
// point are left for Flush.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
		if err := r.drain(ctx); err != nil {
			r.logger.Warn("recorder drain failed", slog.String("error", err.Error()))
		}
	}
}

// Flush writes everything queued, stopping at the first failed batch.
func (r *Recorder) Flush(ctx context.Context) error {
	return r.drain(ctx)
}

// Stats returns queue counters.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecorderStats{Queued: len(r.queue), Written: r.written, Evicted: r.evicted, Failed: r.failed}
}

// drain writes batches until the queue is empty or a batch fails.
func (r *Recorder) drain(ctx context.Context) error {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	for {
		r.mu.Lock()
		n := min(len(r.queue), r.cfg.BatchSize)
		if n == 0 {
			r.mu.Unlock()
			return nil
		}
		batch := make([]domain.Event, n)
		copy(batch, r.queue[:n])
		r.queue = r.queue[n:]
		r.mu.Unlock()

		failed, err := r.write(ctx, batch)
		if err != nil {
			r.requeue(failed)
		}

		r.mu.Lock()
		r.written += uint64(n - len(failed))
		r.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// requeue puts failed records back at the head, evicting the oldest
// entries beyond the queue bound.
func (r *Recorder) requeue(batch []domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	merged := make([]domain.Event, 0, len(batch)+len(r.queue))
	merged = append(merged, batch...)
	merged = append(merged, r.queue...)
	if over := len(merged) - r.cfg.QueueSize; over > 0 {
		merged = merged[over:]
		r.evicted += uint64(over)
	}
	r.queue = merged
}

// write inserts batch grouped by kind and returns the events of every
// group that failed, so only those are retried.
func (r *Recorder) write(ctx context.Context, batch []domain.Event) ([]domain.Event, error) {
	groups := make(map[domain.EventKind][]domain.Event, 4)
	for _, ev := range batch {
		groups[ev.Kind] = append(groups[ev.Kind], ev)
	}

	var (
		failed []domain.Event
		errs   []error
	)
	for _, kind := range []domain.EventKind{domain.EventTrade, domain.EventDecision, domain.EventPortfolio, domain.EventLog} {
		evs := groups[kind]
		if len(evs) == 0 {
			continue
		}
		if err := r.insert(ctx, kind, evs); err != nil {
			failed = append(failed, evs...)
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return failed, fmt.Errorf("eventsink: write batch of %d: %w", len(batch), err)
	}
	return nil, nil
}

func (r *Recorder) insert(ctx context.Context, kind domain.EventKind, evs []domain.Event) error {
	switch kind {
	case domain.EventTrade:
		recs := make([]domain.TradeRecord, len(evs))
		for i, ev := range evs {
			recs[i] = *ev.Trade
		}
		return r.store.InsertTrades(ctx, recs)
	case domain.EventDecision:
		recs := make([]domain.DecisionRecord, len(evs))
		for i, ev := range evs {
			recs[i] = *ev.Decision
		}
		return r.store.InsertDecisions(ctx, recs)
	case domain.EventPortfolio:
		recs := make([]domain.PortfolioSnapshot, len(evs))
		for i, ev := range evs {
			recs[i] = *ev.Snapshot
		}
		return r.store.InsertSnapshots(ctx, recs)
	case domain.EventLog:
		recs := make([]domain.LogRecord, len(evs))
		for i, ev := range evs {
			recs[i] = *ev.Log
		}
		return r.store.InsertEvents(ctx, recs)
	}
	return nil
}
