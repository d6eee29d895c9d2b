// Package executor provides the execution gateways strategies place orders
// through: an in-memory paper venue, the live CLOB, and a guard that wraps
// either one.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// Stats counts gateway traffic.
type Stats struct {
	Placed     uint64 `json:"placed"`
	Rejected   uint64 `json:"rejected"`
	Duplicates uint64 `json:"duplicates"`
	Cancelled  uint64 `json:"cancelled"`
}

// Option configures an Executor.
type Option func(*Executor)

// WithDedupTTL sets the duplicate-suppression window. Zero disables it.
func WithDedupTTL(ttl time.Duration) Option {
	return func(e *Executor) { e.dedupTTL = ttl }
}

// WithMaxOrderValue rejects orders whose price*size exceeds v.
func WithMaxOrderValue(v float64) Option {
	return func(e *Executor) { e.maxOrderValue = v }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor guards an ExecutionGateway. It rejects oversized orders, drops
// identical requests repeated within the dedup window, honours a kill
// switch and logs every placement. Like the gateways it wraps, it never
// returns placement failures as errors.
type Executor struct {
	next          domain.ExecutionGateway
	dedup         *Dedup
	dedupTTL      time.Duration
	maxOrderValue float64
	killed        atomic.Bool
	now           func() time.Time
	logger        *slog.Logger

	placed, rejected, duplicates, cancelled atomic.Uint64
}

var _ domain.ExecutionGateway = (*Executor)(nil)

// New wraps next.
func New(next domain.ExecutionGateway, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		next:     next,
		dedupTTL: 2 * time.Second,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dedupTTL > 0 {
		e.dedup = NewDedup(e.dedupTTL, e.now)
	}
	return e
}

// PlaceLimitOrder validates req and forwards it.
func (e *Executor) PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) domain.OrderResult {
	log := e.logger.With(
		slog.String("strategy", req.Strategy),
		slog.String("outcome", req.OutcomeID),
		slog.String("side", string(req.Side)),
	)

	if e.killed.Load() {
		return e.reject(log, "kill switch engaged")
	}
	if err := validateRequest(req); err != nil {
		return e.reject(log, err.Error())
	}
	if e.maxOrderValue > 0 && req.Price*req.Size > e.maxOrderValue {
		return e.reject(log, fmt.Sprintf("order value %.2f exceeds limit %.2f", req.Price*req.Size, e.maxOrderValue))
	}
	if e.dedup != nil && e.dedup.IsDuplicate(req) {
		e.duplicates.Add(1)
		log.Warn("duplicate order suppressed")
		return domain.OrderResult{Status: domain.OrderStatusFailed, Error: "duplicate order", PlacedAt: e.now()}
	}

	res := e.next.PlaceLimitOrder(ctx, req)
	if !res.Success {
		if e.dedup != nil {
			e.dedup.Forget(req)
		}
		return e.reject(log, res.Error)
	}

	e.placed.Add(1)
	log.Info("order placed",
		slog.String("order_id", res.OrderID),
		slog.String("status", string(res.Status)),
		slog.Float64("price", req.Price),
		slog.Float64("size", req.Size),
		slog.Float64("filled", res.Filled),
	)
	return res
}

// OrderStatus forwards to the wrapped gateway.
func (e *Executor) OrderStatus(ctx context.Context, orderID string) (domain.FillStatus, error) {
	return e.next.OrderStatus(ctx, orderID)
}

// Cancel forwards to the wrapped gateway.
func (e *Executor) Cancel(ctx context.Context, orderID string) bool {
	ok := e.next.Cancel(ctx, orderID)
	if ok {
		e.cancelled.Add(1)
		e.logger.Info("order cancelled", slog.String("order_id", orderID))
	}
	return ok
}

// Kill rejects every subsequent placement until Revive.
func (e *Executor) Kill() {
	e.killed.Store(true)
	e.logger.Warn("kill switch engaged")
}

// Revive lifts Kill.
func (e *Executor) Revive() { e.killed.Store(false) }

// Stats returns traffic counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Placed:     e.placed.Load(),
		Rejected:   e.rejected.Load(),
		Duplicates: e.duplicates.Load(),
		Cancelled:  e.cancelled.Load(),
	}
}

// Run expires dedup entries until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	if e.dedup == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(max(e.dedupTTL, time.Second) * 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.dedup.Cleanup()
		}
	}
}

func (e *Executor) reject(log *slog.Logger, msg string) domain.OrderResult {
	e.rejected.Add(1)
	log.Warn("order rejected", slog.String("error", msg))
	return domain.OrderResult{Status: domain.OrderStatusFailed, Error: msg, PlacedAt: e.now()}
}
