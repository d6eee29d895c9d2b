package polymarket

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

func TestBookStreamAppliesSnapshotsAndChanges(t *testing.T) {
	s := NewBookStream("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	s.handleMessage([]byte(`[{"event_type":"book","asset_id":"tok",
		"bids":[{"price":"0.10","size":"50"}],
		"asks":[{"price":"0.13","size":"20"},{"price":"0.12","size":"40"}]}]`), now)

	book, ok := s.Book("tok", time.Second, now)
	require.True(t, ok)
	assert.Equal(t, domain.PriceLevel{Price: 0.12, Size: 40}, book.BestAsk())

	s.handleMessage([]byte(`{"event_type":"price_change","asset_id":"tok",
		"changes":[{"price":"0.12","side":"SELL","size":"0"},{"price":"0.11","side":"BUY","size":"5"}]}`), now.Add(time.Second))

	book, ok = s.Book("tok", time.Second, now.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, domain.PriceLevel{Price: 0.13, Size: 20}, book.BestAsk())
	assert.Equal(t, domain.PriceLevel{Price: 0.11, Size: 5}, book.BestBid())

	_, ok = s.Book("tok", time.Second, now.Add(5*time.Second))
	assert.False(t, ok, "stale books are not served")

	_, ok = s.Book("other", time.Minute, now)
	assert.False(t, ok)
}

func TestBookStreamIgnoresGarbage(t *testing.T) {
	s := NewBookStream("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Now()
	s.handleMessage([]byte(`not json`), now)
	s.handleMessage([]byte(`{"event_type":"book","asset_id":"tok","bids":[{"price":"2","size":"1"}]}`), now)
	_, ok := s.Book("tok", time.Minute, now)
	assert.False(t, ok)
}

func TestSubscribeOfflineTracksAssets(t *testing.T) {
	s := NewBookStream("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.Subscribe("a", "b", "a", ""))
	assert.Len(t, s.assets, 2)
}
