package eventsink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// Redis channels and stream the relay publishes to.
const (
	ChannelState   = "poly:state"
	ChannelSignals = "poly:signals"
	ChannelTrades  = "poly:trades"
	ChannelErrors  = "poly:errors"
	StreamTrades   = "poly:stream:trades"
)

// StateUpdate is the broadcast type carrying a loop's full state.
const StateUpdate = "state_update"

// Envelope is the JSON frame sent to external consumers.
type Envelope struct {
	Type      string    `json:"type"`
	Strategy  string    `json:"strategy"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// EnvelopeOf wraps ev for the wire.
func EnvelopeOf(ev domain.Event) Envelope {
	env := Envelope{Type: string(ev.Kind), Strategy: ev.Strategy()}
	switch ev.Kind {
	case domain.EventTrade:
		env.Data, env.Timestamp = ev.Trade, ev.Trade.Timestamp
	case domain.EventDecision:
		env.Data, env.Timestamp = ev.Decision, ev.Decision.Timestamp
	case domain.EventPortfolio:
		env.Data, env.Timestamp = ev.Snapshot, ev.Snapshot.Timestamp
	case domain.EventLog:
		env.Data, env.Timestamp = ev.Log, ev.Log.Timestamp
	case domain.EventBroadcast:
		env.Type = ev.Broadcast.Type
		env.Data, env.Timestamp = ev.Broadcast.Payload, ev.Broadcast.Timestamp
	}
	return env
}

// Relay forwards bus events to a SignalBus and keeps the StateCache
// current. Failures are logged and the event dropped.
type Relay struct {
	signals domain.SignalBus
	state   domain.StateCache
	logger  *slog.Logger
}

// NewRelay creates a relay. state may be nil.
func NewRelay(signals domain.SignalBus, state domain.StateCache, logger *slog.Logger) *Relay {
	return &Relay{signals: signals, state: state, logger: logger.With(slog.String("component", "relay"))}
}

// Run forwards events until the channel closes or ctx is cancelled.
func (r *Relay) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.forward(ctx, ev)
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev domain.Event) {
	env := EnvelopeOf(ev)
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.Warn("encoding event", slog.String("type", env.Type), slog.String("error", err.Error()))
		return
	}

	switch ev.Kind {
	case domain.EventTrade:
		r.publish(ctx, ChannelTrades, payload)
		if err := r.signals.StreamAppend(ctx, StreamTrades, payload); err != nil {
			r.logger.Warn("stream append", slog.String("error", err.Error()))
		}
	case domain.EventDecision:
		r.publish(ctx, ChannelSignals, payload)
	case domain.EventLog:
		if ev.Log.Level == domain.LevelError || ev.Log.Level == domain.LevelAlert {
			r.publish(ctx, ChannelErrors, payload)
		}
	case domain.EventBroadcast:
		if ev.Broadcast.Type != StateUpdate {
			r.publish(ctx, ChannelSignals, payload)
			return
		}
		r.publish(ctx, ChannelState, payload)
		if r.state != nil {
			if err := r.state.SetState(ctx, env.Strategy, payload); err != nil {
				r.logger.Warn("caching state", slog.String("strategy", env.Strategy), slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Relay) publish(ctx context.Context, channel string, payload []byte) {
	if err := r.signals.Publish(ctx, channel, payload); err != nil {
		r.logger.Warn("publish", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}
