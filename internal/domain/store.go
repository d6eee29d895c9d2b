package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit    int
	Offset   int
	Strategy string
	Since    *time.Time
	Until    *time.Time
}

// RecordStore persists the records drained from the event sink.
type RecordStore interface {
	InsertTrades(ctx context.Context, trades []TradeRecord) error
	InsertDecisions(ctx context.Context, decisions []DecisionRecord) error
	InsertSnapshots(ctx context.Context, snaps []PortfolioSnapshot) error
	InsertEvents(ctx context.Context, events []LogRecord) error
}

// TradeHistory reads persisted trades back for reports and archives.
type TradeHistory interface {
	ListTrades(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	LatestSnapshots(ctx context.Context) ([]PortfolioSnapshot, error)
}
