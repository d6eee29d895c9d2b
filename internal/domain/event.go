package domain

import "time"

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventTrade     EventKind = "trade"
	EventDecision  EventKind = "decision"
	EventPortfolio EventKind = "portfolio"
	EventLog       EventKind = "log"
	EventBroadcast EventKind = "broadcast"
)

// Level is the severity of a LogRecord.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelTrade Level = "TRADE"
	LevelAlert Level = "ALERT"
	LevelError Level = "ERROR"
)

// Log record types emitted by strategy loops.
const (
	LogStart      = "START"
	LogStop       = "STOP"
	LogError      = "ERROR"
	LogScan       = "SCAN"
	LogSettlement = "SETTLEMENT"
)

// TradeAction is what a TradeRecord describes.
type TradeAction string

const (
	TradeOpen   TradeAction = "OPEN"
	TradeClose  TradeAction = "CLOSE"
	TradeSettle TradeAction = "SETTLE"
	TradeFill   TradeAction = "FILL"
)

// TradeRecord is a position lifecycle event worth persisting.
type TradeRecord struct {
	ID           string         `json:"id"`
	Strategy     string         `json:"strategy"`
	Action       TradeAction    `json:"action"`
	PositionID   string         `json:"position_id"`
	InstrumentID string         `json:"instrument_id"`
	Slug         string         `json:"slug"`
	OutcomeID    string         `json:"outcome_id"`
	OutcomeName  string         `json:"outcome"`
	Side         OrderSide      `json:"side"`
	Price        float64        `json:"price"`
	Quantity     float64        `json:"quantity"`
	Value        float64        `json:"value"`
	PnL          float64        `json:"pnl"`
	Reason       string         `json:"reason,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// DecisionRecord is an evaluated opportunity.
type DecisionRecord struct {
	Strategy     string         `json:"strategy"`
	Verdict      Verdict        `json:"decision"`
	InstrumentID string         `json:"instrument_id"`
	Slug         string         `json:"slug"`
	Question     string         `json:"question,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Price        float64        `json:"price"`
	Edge         float64        `json:"edge"`
	Size         float64        `json:"size"`
	Meta         map[string]any `json:"meta,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// LogRecord is a loop lifecycle or error event.
type LogRecord struct {
	Strategy  string         `json:"strategy"`
	Level     Level          `json:"level"`
	Type      string         `json:"event_type"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// BroadcastMessage is a transient notification for live consumers. It is not
// persisted.
type BroadcastMessage struct {
	Strategy  string    `json:"strategy"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is the tagged union published on the event bus. Exactly one of the
// pointer fields matching Kind is set.
type Event struct {
	Kind      EventKind
	Trade     *TradeRecord
	Decision  *DecisionRecord
	Snapshot  *PortfolioSnapshot
	Log       *LogRecord
	Broadcast *BroadcastMessage
}

// Strategy returns the strategy tag of whichever variant is set.
func (e Event) Strategy() string {
	switch e.Kind {
	case EventTrade:
		return e.Trade.Strategy
	case EventDecision:
		return e.Decision.Strategy
	case EventPortfolio:
		return e.Snapshot.Strategy
	case EventLog:
		return e.Log.Strategy
	case EventBroadcast:
		return e.Broadcast.Strategy
	}
	return ""
}

// Persistent reports whether the event belongs in the record store.
func (e Event) Persistent() bool { return e.Kind != EventBroadcast }
