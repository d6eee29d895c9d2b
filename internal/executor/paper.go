package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// defaultTerminalKeep bounds how many matched or cancelled orders stay
// queryable.
const defaultTerminalKeep = 1000

// PaperOption configures a PaperGateway.
type PaperOption func(*PaperGateway)

// WithRestingMakers leaves maker orders unfilled until Fill is called.
// By default every order fills in full at its limit price.
func WithRestingMakers() PaperOption {
	return func(g *PaperGateway) { g.restMakers = true }
}

// WithPaperClock overrides time.Now for order timestamps.
func WithPaperClock(now func() time.Time) PaperOption {
	return func(g *PaperGateway) { g.now = now }
}

// WithTerminalKeep sets how many terminal orders are retained for
// OrderStatus. Older ones are forgotten; open orders are always kept.
func WithTerminalKeep(n int) PaperOption {
	return func(g *PaperGateway) {
		if n > 0 {
			g.terminalKeep = n
		}
	}
}

type paperOrder struct {
	req    domain.OrderRequest
	filled float64
	status domain.OrderStatus
}

// PaperGateway simulates the venue in memory. It is safe for concurrent use.
type PaperGateway struct {
	mu         sync.Mutex
	orders     map[string]*paperOrder
	terminal   []string
	restMakers bool
	now        func() time.Time
	logger     *slog.Logger

	terminalKeep int
}

var _ domain.ExecutionGateway = (*PaperGateway)(nil)

// NewPaperGateway creates an in-memory gateway.
func NewPaperGateway(logger *slog.Logger, opts ...PaperOption) *PaperGateway {
	g := &PaperGateway{
		orders:       make(map[string]*paperOrder),
		now:          time.Now,
		logger:       logger.With(slog.String("component", "paper_gateway")),
		terminalKeep: defaultTerminalKeep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PlaceLimitOrder accepts any well-formed order. Takers, and makers unless
// WithRestingMakers is set, fill in full at the limit price.
func (g *PaperGateway) PlaceLimitOrder(_ context.Context, req domain.OrderRequest) domain.OrderResult {
	now := g.now()
	if err := validateRequest(req); err != nil {
		return domain.OrderResult{Status: domain.OrderStatusFailed, Error: err.Error(), PlacedAt: now}
	}

	o := &paperOrder{req: req, status: domain.OrderStatusOpen}
	if !req.Maker || !g.restMakers {
		o.filled = req.Size
		o.status = domain.OrderStatusMatched
	}
	id := "paper-" + uuid.New().String()

	g.mu.Lock()
	g.orders[id] = o
	if o.status != domain.OrderStatusOpen {
		g.retire(id)
	}
	g.mu.Unlock()

	g.logger.Debug("paper order",
		slog.String("order", id),
		slog.String("outcome", req.OutcomeID),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price),
		slog.Float64("size", req.Size),
		slog.Float64("filled", o.filled),
	)

	res := domain.OrderResult{
		Success:  true,
		OrderID:  id,
		Status:   o.status,
		Filled:   o.filled,
		PlacedAt: now,
	}
	if o.filled > 0 {
		res.AvgPrice = req.Price
	}
	return res
}

// OrderStatus reports the simulated fill state.
func (g *PaperGateway) OrderStatus(_ context.Context, orderID string) (domain.FillStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return domain.FillStatus{}, fmt.Errorf("executor: paper order %s: %w", orderID, domain.ErrNotFound)
	}
	st := domain.FillStatus{OrderID: orderID, FilledAmount: o.filled, Status: o.status}
	if o.filled > 0 {
		st.AvgPrice = o.req.Price
	}
	return st, nil
}

// Cancel marks an open order cancelled. Filled or unknown orders report
// false.
func (g *PaperGateway) Cancel(_ context.Context, orderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok || o.status != domain.OrderStatusOpen {
		return false
	}
	o.status = domain.OrderStatusCancelled
	g.retire(orderID)
	return true
}

// Fill adds amount shares to a resting order, capped at its size.
func (g *PaperGateway) Fill(orderID string, amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok || o.status != domain.OrderStatusOpen {
		return
	}
	o.filled = min(o.req.Size, o.filled+amount)
	if o.filled >= o.req.Size {
		o.status = domain.OrderStatusMatched
		g.retire(orderID)
	}
}

// retire queues a terminal order for eviction. Callers hold g.mu.
func (g *PaperGateway) retire(id string) {
	g.terminal = append(g.terminal, id)
	if over := len(g.terminal) - g.terminalKeep; over > 0 {
		for _, old := range g.terminal[:over] {
			delete(g.orders, old)
		}
		g.terminal = append(g.terminal[:0], g.terminal[over:]...)
	}
}

// Open lists the IDs of resting orders.
func (g *PaperGateway) Open() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []string
	for id, o := range g.orders {
		if o.status == domain.OrderStatusOpen {
			ids = append(ids, id)
		}
	}
	return ids
}

func validateRequest(req domain.OrderRequest) error {
	switch {
	case req.OutcomeID == "":
		return errors.New("missing outcome")
	case req.Price <= 0 || req.Price > 1:
		return fmt.Errorf("price %.4f outside (0, 1]", req.Price)
	case req.Size <= 0:
		return fmt.Errorf("size %.4f must be positive", req.Size)
	case req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell:
		return fmt.Errorf("unknown side %q", req.Side)
	}
	return nil
}
