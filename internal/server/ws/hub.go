// Package ws streams bus events to dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/eventsink"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Snapshotter returns the current state of every strategy; each entry is
// sent to a client as a state_update frame right after it connects.
type Snapshotter func() map[string]any

// Config carries metadata for the hello frame.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub fans bus events out to connected clients. Each client filters by
// topic: an envelope type ("trade", "state_update", ...) optionally
// prefixed with a strategy ("crash:trade"). "*" suffixes match prefixes.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	snapshot   Snapshotter
	cfg        Config
	mu         sync.RWMutex
	logger     *slog.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg is sent by clients to change their topics.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// NewHub creates a hub. snapshot may be nil.
func NewHub(cfg Config, snapshot Snapshotter, logger *slog.Logger) *Hub {
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run forwards events to subscribed clients until ctx ends or events
// closes. Slow clients miss frames rather than stall the hub.
func (h *Hub) Run(ctx context.Context, events <-chan domain.Event) error {
	defer func() {
		close(h.done)
		h.closeAll()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))
		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev domain.Event) {
	env := eventsink.EnvelopeOf(ev)
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("encoding frame", slog.String("type", env.Type), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(env.Strategy, env.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping frame for slow client", slog.String("type", env.Type))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client, subscribed to
// everything until it says otherwise.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{"*": true},
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	c.sendInitial()

	go c.writePump()
	go c.readPump()
}

// sendInitial queues the hello frame and one state_update per strategy.
func (c *client) sendInitial() {
	hello := map[string]any{
		"type": "hello",
		"data": map[string]any{
			"mode":           c.hub.cfg.Mode,
			"uptime_seconds": int64(max(0, time.Since(c.hub.cfg.StartedAt).Seconds())),
		},
		"timestamp": time.Now().UTC(),
	}
	c.enqueue(hello)

	if c.hub.snapshot == nil {
		return
	}
	for name, st := range c.hub.snapshot() {
		c.enqueue(eventsink.Envelope{Type: eventsink.StateUpdate, Strategy: name, Data: st, Timestamp: time.Now().UTC()})
	}
}

func (c *client) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	case "replace":
		c.subs = make(map[string]bool, len(msg.Channels))
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	}
}

// wants reports whether the client subscribed to typ, either bare or
// scoped to strategy.
func (c *client) wants(strategy, typ string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return matchAny(c.subs, typ) || (strategy != "" && matchAny(c.subs, strategy+":"+typ))
}

func matchAny(subs map[string]bool, topic string) bool {
	if subs[topic] {
		return true
	}
	for sub := range subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
