// Package notify turns bus events into operator alerts on Telegram and
// Discord. Alerts can be filtered by kind.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// Alert kinds accepted in the filter list.
const (
	KindTradeOpen   = "trade_open"
	KindTradeClose  = "trade_close"
	KindTradeSettle = "trade_settle"
	KindError       = "error"
	KindAlert       = "alert"
	KindLifecycle   = "lifecycle"
)

const sendTimeout = 10 * time.Second

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every sender.
type Notifier struct {
	senders []Sender
	kinds   map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty kinds list allows every kind.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			allowed[k] = true
		}
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify sends when kind passes the filter.
func (n *Notifier) Notify(ctx context.Context, kind, title, message string) error {
	if len(n.kinds) > 0 && !n.kinds[kind] {
		n.logger.DebugContext(ctx, "alert filtered out", slog.String("kind", kind))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Run alerts on bus events until the channel closes or ctx ends. Send
// failures are logged and never stop the loop.
func (n *Notifier) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			kind, title, msg, ok := Format(ev)
			if !ok {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			_ = n.Notify(sendCtx, kind, title, msg)
			cancel()
		}
	}
}

// Format renders ev as an alert. ok is false for events that never alert:
// decisions, snapshots, broadcasts and routine logs.
func Format(ev domain.Event) (kind, title, message string, ok bool) {
	switch ev.Kind {
	case domain.EventTrade:
		t := ev.Trade
		switch t.Action {
		case domain.TradeOpen:
			return KindTradeOpen,
				fmt.Sprintf("[%s] OPEN %s", t.Strategy, t.OutcomeName),
				fmt.Sprintf("%s\n%.2f @ %.4f = $%.2f\n%s", t.Slug, t.Quantity, t.Price, t.Value, t.Reason), true
		case domain.TradeClose, domain.TradeSettle:
			kind := KindTradeClose
			if t.Action == domain.TradeSettle {
				kind = KindTradeSettle
			}
			return kind,
				fmt.Sprintf("[%s] %s %s PnL %+.2f", t.Strategy, t.Action, t.OutcomeName, t.PnL),
				fmt.Sprintf("%s\n%.2f @ %.4f\n%s", t.Slug, t.Quantity, t.Price, t.Reason), true
		}
	case domain.EventLog:
		l := ev.Log
		switch {
		case l.Level == domain.LevelError:
			return KindError, fmt.Sprintf("[%s] ERROR %s", l.Strategy, l.Type), l.Message, true
		case l.Level == domain.LevelAlert:
			return KindAlert, fmt.Sprintf("[%s] ALERT %s", l.Strategy, l.Type), l.Message, true
		case l.Type == domain.LogStart || l.Type == domain.LogStop:
			return KindLifecycle, fmt.Sprintf("[%s] %s", l.Strategy, l.Type), l.Message, true
		}
	}
	return "", "", "", false
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent", slog.String("sender", s.Name()), slog.String("title", title))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
