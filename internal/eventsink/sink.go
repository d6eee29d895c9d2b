package eventsink

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// Sink is the domain.EventSink handed to strategy loops. Every record is
// published on the bus and, unless it is a broadcast, queued on the
// recorder. No method blocks.
type Sink struct {
	bus      *Bus
	recorder *Recorder
	now      func() time.Time
	logger   *slog.Logger
}

var _ domain.EventSink = (*Sink)(nil)

// NewSink creates a sink. recorder may be nil when nothing is persisted.
func NewSink(bus *Bus, recorder *Recorder, logger *slog.Logger) *Sink {
	return &Sink{
		bus:      bus,
		recorder: recorder,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "event_sink")),
	}
}

func (s *Sink) RecordTrade(rec domain.TradeRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	s.logger.Info("trade",
		slog.String("strategy", rec.Strategy),
		slog.String("action", string(rec.Action)),
		slog.String("slug", rec.Slug),
		slog.String("outcome", rec.OutcomeName),
		slog.Float64("price", rec.Price),
		slog.Float64("quantity", rec.Quantity),
		slog.Float64("pnl", rec.PnL),
	)
	s.emit(domain.Event{Kind: domain.EventTrade, Trade: &rec})
}

func (s *Sink) RecordDecision(rec domain.DecisionRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	s.emit(domain.Event{Kind: domain.EventDecision, Decision: &rec})
}

func (s *Sink) RecordPortfolioSnapshot(snap domain.PortfolioSnapshot) {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now()
	}
	s.emit(domain.Event{Kind: domain.EventPortfolio, Snapshot: &snap})
}

// RecordEvent records a lifecycle or error event and mirrors it to the
// process log.
func (s *Sink) RecordEvent(strategy string, level domain.Level, eventType, message string, meta map[string]any) {
	rec := domain.LogRecord{
		Strategy:  strategy,
		Level:     level,
		Type:      eventType,
		Message:   message,
		Meta:      meta,
		Timestamp: s.now(),
	}
	s.logger.Log(context.Background(), slogLevel(level), message,
		slog.String("strategy", strategy),
		slog.String("event_type", eventType),
	)
	s.emit(domain.Event{Kind: domain.EventLog, Log: &rec})
}

// Broadcast publishes a transient message for live consumers only.
func (s *Sink) Broadcast(strategy, eventType string, payload any) {
	s.bus.Publish(domain.Event{Kind: domain.EventBroadcast, Broadcast: &domain.BroadcastMessage{
		Strategy:  strategy,
		Type:      eventType,
		Payload:   payload,
		Timestamp: s.now(),
	}})
}

// Flush drains the recorder.
func (s *Sink) Flush(ctx context.Context) error {
	if s.recorder == nil {
		return nil
	}
	return s.recorder.Flush(ctx)
}

func (s *Sink) emit(ev domain.Event) {
	s.bus.Publish(ev)
	if s.recorder != nil {
		s.recorder.Enqueue(ev)
	}
}

func slogLevel(l domain.Level) slog.Level {
	switch l {
	case domain.LevelDebug:
		return slog.LevelDebug
	case domain.LevelAlert:
		return slog.LevelWarn
	case domain.LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
