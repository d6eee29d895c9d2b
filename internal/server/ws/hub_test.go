package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

type frame struct {
	Type     string          `json:"type"`
	Strategy string          `json:"strategy"`
	Data     json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestMatchAny(t *testing.T) {
	subs := map[string]bool{"trade": true, "crash:*": true}
	assert.True(t, matchAny(subs, "trade"))
	assert.True(t, matchAny(subs, "crash:decision"))
	assert.False(t, matchAny(subs, "decision"))
	assert.True(t, matchAny(map[string]bool{"*": true}, "anything"))
}

func TestHubStreamsFilteredEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(Config{Mode: "paper"}, func() map[string]any {
		return map[string]any{"crash": map[string]int{"cycles": 4}}
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan domain.Event, 8)
	go hub.Run(ctx, events)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, "hello", hello.Type)
	st := readFrame(t, conn)
	assert.Equal(t, "state_update", st.Type)
	assert.Equal(t, "crash", st.Strategy)
	assert.JSONEq(t, `{"cycles":4}`, string(st.Data))

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "replace", Channels: []string{"crash:trade"}}))
	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.wants("crash", "trade") && !c.wants("arbitrage", "trade") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	events <- domain.Event{Kind: domain.EventTrade, Trade: &domain.TradeRecord{ID: "skip", Strategy: "arbitrage"}}
	events <- domain.Event{Kind: domain.EventTrade, Trade: &domain.TradeRecord{ID: "keep", Strategy: "crash"}}

	got := readFrame(t, conn)
	assert.Equal(t, "trade", got.Type)
	assert.Equal(t, "crash", got.Strategy)
	assert.Contains(t, string(got.Data), `"keep"`)
	assert.Equal(t, 1, hub.Clients())
}
