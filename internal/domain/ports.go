package domain

import "context"

// MarketSource lists instruments and order books. Implementations return
// empty results instead of errors on transient failure.
type MarketSource interface {
	ListInstruments(ctx context.Context, filter InstrumentFilter) []Instrument
	OrderBook(ctx context.Context, outcomeID string) OrderBook
}

// SportsResultSource reports finished games. Empty on failure.
type SportsResultSource interface {
	FinishedGames(ctx context.Context, league League) []GameResult
}

// ExecutionGateway submits orders to a venue, real or simulated.
type ExecutionGateway interface {
	PlaceLimitOrder(ctx context.Context, req OrderRequest) OrderResult
	OrderStatus(ctx context.Context, orderID string) (FillStatus, error)
	Cancel(ctx context.Context, orderID string) bool
}

// EventSink receives records from strategy loops. Every method returns
// immediately and never reports persistence failures.
type EventSink interface {
	RecordTrade(rec TradeRecord)
	RecordDecision(rec DecisionRecord)
	RecordPortfolioSnapshot(snap PortfolioSnapshot)
	RecordEvent(strategy string, level Level, eventType, message string, meta map[string]any)
	Broadcast(strategy, eventType string, payload any)
}
