package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return "record" }

func TestFormat(t *testing.T) {
	kind, title, msg, ok := Format(domain.Event{Kind: domain.EventTrade, Trade: &domain.TradeRecord{
		Strategy: "crash", Action: domain.TradeClose, OutcomeName: "Up", PnL: 12.5, Slug: "btc-updown", Reason: "PROFIT_TARGET",
	}})
	require.True(t, ok)
	assert.Equal(t, KindTradeClose, kind)
	assert.Equal(t, "[crash] CLOSE Up PnL +12.50", title)
	assert.Contains(t, msg, "PROFIT_TARGET")

	kind, _, _, ok = Format(domain.Event{Kind: domain.EventLog, Log: &domain.LogRecord{Level: domain.LevelError, Type: domain.LogError}})
	assert.True(t, ok)
	assert.Equal(t, KindError, kind)

	_, _, _, ok = Format(domain.Event{Kind: domain.EventLog, Log: &domain.LogRecord{Level: domain.LevelInfo, Type: domain.LogScan}})
	assert.False(t, ok)
	_, _, _, ok = Format(domain.Event{Kind: domain.EventDecision, Decision: &domain.DecisionRecord{}})
	assert.False(t, ok)
}

func TestNotifierFiltersAndCollectsErrors(t *testing.T) {
	ok := &recordSender{}
	bad := &recordSender{err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, []string{KindError, " "}, discard())

	require.NoError(t, n.Notify(context.Background(), KindTradeOpen, "skipped", ""))
	assert.Empty(t, ok.titles)

	err := n.Notify(context.Background(), KindError, "sent", "")
	assert.ErrorContains(t, err, "record: boom")
	assert.Equal(t, []string{"sent"}, ok.titles)
}

func TestRunAlertsOnEvents(t *testing.T) {
	s := &recordSender{}
	n := NewNotifier([]Sender{s}, nil, discard())

	events := make(chan domain.Event, 3)
	events <- domain.Event{Kind: domain.EventTrade, Trade: &domain.TradeRecord{Strategy: "arbitrage", Action: domain.TradeOpen, OutcomeName: "Yes"}}
	events <- domain.Event{Kind: domain.EventPortfolio, Snapshot: &domain.PortfolioSnapshot{}}
	events <- domain.Event{Kind: domain.EventLog, Log: &domain.LogRecord{Strategy: "arbitrage", Level: domain.LevelInfo, Type: domain.LogStop}}
	close(events)

	require.NoError(t, n.Run(context.Background(), events))
	assert.Equal(t, []string{"[arbitrage] OPEN Yes", "[arbitrage] STOP"}, s.titles)
}

func TestSenders(t *testing.T) {
	var got []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body)
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg := NewTelegramSender("tok", "42")
	tg.baseURL = srv.URL
	require.NoError(t, tg.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got[0]["chat_id"])
	assert.Equal(t, "*Title*\nbody", got[0]["text"])

	require.NoError(t, NewDiscordSender(srv.URL+"/hook").Send(context.Background(), "T", "m"))
	assert.Equal(t, "**T**\nm", got[1]["content"])

	err := NewDiscordSender(srv.URL+"/fail").Send(context.Background(), "T", "m")
	assert.ErrorContains(t, err, "unexpected status 400")
}
