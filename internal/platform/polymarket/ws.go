package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// DefaultMarketWSURL is the public market channel.
const DefaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// wsSubscribe is the market channel subscription frame.
type wsSubscribe struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// wsEvent covers the "book" and "price_change" events. Both may arrive as
// a single object or inside an array.
type wsEvent struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Changes   []wsChange      `json:"changes"`
	Timestamp string          `json:"timestamp"`
}

type wsChange struct {
	Price string `json:"price"`
	Side  string `json:"side"` // BUY updates bids, SELL updates asks
	Size  string `json:"size"`
}

// BookStream keeps the latest order book per subscribed outcome token from
// the CLOB market websocket. It reconnects with backoff until its context
// ends and replays subscriptions on every connection.
type BookStream struct {
	wsURL  string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	assets map[string]struct{}
	books  map[string]domain.OrderBook
}

// NewBookStream creates a stream for the given websocket URL.
func NewBookStream(wsURL string, logger *slog.Logger) *BookStream {
	if wsURL == "" {
		wsURL = DefaultMarketWSURL
	}
	return &BookStream{
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "book_stream")),
		assets: make(map[string]struct{}),
		books:  make(map[string]domain.OrderBook),
	}
}

// Subscribe adds outcome tokens to the stream. Tokens already tracked are
// ignored; new ones are sent immediately when connected.
func (s *BookStream) Subscribe(assetIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []string
	for _, id := range assetIDs {
		if _, ok := s.assets[id]; ok || id == "" {
			continue
		}
		s.assets[id] = struct{}{}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 || s.conn == nil {
		return nil
	}
	if err := s.send(wsSubscribe{AssetIDs: fresh, Type: "market"}); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// Book returns the latest book for assetID if one arrived within maxAge.
func (s *BookStream) Book(assetID string, maxAge time.Duration, now time.Time) (domain.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[assetID]
	if !ok || now.Sub(b.Timestamp) > maxAge {
		return domain.OrderBook{}, false
	}
	return b, true
}

// Run connects and reads until ctx is cancelled.
func (s *BookStream) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("market websocket disconnected", slog.String("error", fmt.Sprint(err)), slog.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// session runs one connection to completion.
func (s *BookStream) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	s.conn = conn
	ids := make([]string, 0, len(s.assets))
	for id := range s.assets {
		ids = append(ids, id)
	}
	var subErr error
	if len(ids) > 0 {
		subErr = s.send(wsSubscribe{AssetIDs: ids, Type: "market"})
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()
	if subErr != nil {
		return fmt.Errorf("polymarket/ws: restore subscriptions: %w", subErr)
	}
	s.logger.Info("market websocket connected", slog.Int("assets", len(ids)))

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(ctx, conn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(msg, time.Now())
	}
}

func (s *BookStream) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Unblocks ReadMessage in session.
			conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// send writes a JSON frame. Caller must hold s.mu.
func (s *BookStream) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// handleMessage applies book snapshots and level changes. Frames that do
// not decode are dropped.
func (s *BookStream) handleMessage(raw []byte, now time.Time) {
	var events []wsEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		var single wsEvent
		if err := json.Unmarshal(raw, &single); err != nil {
			return
		}
		events = []wsEvent{single}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		switch ev.EventType {
		case "book":
			snap := APIBook{AssetID: ev.AssetID, Bids: ev.Bids, Asks: ev.Asks}
			book, err := snap.ToOrderBook(ev.AssetID, now)
			if err != nil {
				s.logger.Debug("dropping malformed book", slog.String("asset_id", ev.AssetID), slog.String("error", err.Error()))
				continue
			}
			s.books[ev.AssetID] = book
		case "price_change":
			book, ok := s.books[ev.AssetID]
			if !ok {
				continue
			}
			for _, ch := range ev.Changes {
				book = applyChange(book, ch)
			}
			book.Timestamp = now
			s.books[ev.AssetID] = book
		}
	}
}

// applyChange sets one level's size; zero removes the level.
func applyChange(book domain.OrderBook, ch wsChange) domain.OrderBook {
	price, err := strconv.ParseFloat(ch.Price, 64)
	if err != nil || price <= 0 || price > 1 {
		return book
	}
	size, err := strconv.ParseFloat(ch.Size, 64)
	if err != nil {
		return book
	}

	var levels []domain.PriceLevel
	bids := ch.Side == "BUY"
	if bids {
		levels = book.Bids
	} else {
		levels = book.Asks
	}

	out := make([]domain.PriceLevel, 0, len(levels)+1)
	found := false
	for _, lvl := range levels {
		if lvl.Price == price {
			found = true
			if size > 0 {
				out = append(out, domain.PriceLevel{Price: price, Size: size})
			}
			continue
		}
		out = append(out, lvl)
	}
	if !found && size > 0 {
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}

	if bids {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
		book.Bids = out
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
		book.Asks = out
	}
	return book
}
