package strategy

import (
	"sync"
	"time"
)

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

// PriceTracker keeps, per key, a time-windowed price history and a short
// fixed-length tick buffer. Points older than the window are evicted on every
// Track call; idle keys are dropped by Prune.
type PriceTracker struct {
	history map[string][]PricePoint
	ticks   map[string][]float64
	window  time.Duration
	tickLen int
	mu      sync.RWMutex
}

// NewPriceTracker creates a PriceTracker with the given lookback window and
// tick buffer length.
func NewPriceTracker(window time.Duration, tickLen int) *PriceTracker {
	if tickLen < 1 {
		tickLen = 1
	}
	return &PriceTracker{
		history: make(map[string][]PricePoint),
		ticks:   make(map[string][]float64),
		window:  window,
		tickLen: tickLen,
	}
}

// Track records a new observation for key and trims points that have fallen
// outside the window.
func (pt *PriceTracker) Track(key string, price float64, ts time.Time) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.history[key] = append(pt.history[key], PricePoint{Price: price, Time: ts})
	pt.trim(key, ts)

	buf := append(pt.ticks[key], price)
	if len(buf) > pt.tickLen {
		buf = buf[len(buf)-pt.tickLen:]
	}
	pt.ticks[key] = buf
}

// High returns the highest price in the window, or 0 with no history.
func (pt *PriceTracker) High(key string) float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	var high float64
	for _, p := range pt.history[key] {
		if p.Price > high {
			high = p.Price
		}
	}
	return high
}

// Low returns the lowest price in the window, or 1.0 with no history.
func (pt *PriceTracker) Low(key string) float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	pts := pt.history[key]
	if len(pts) == 0 {
		return 1.0
	}
	low := pts[0].Price
	for _, p := range pts[1:] {
		if p.Price < low {
			low = p.Price
		}
	}
	return low
}

// Ticks returns a copy of the tick buffer for key, oldest first.
func (pt *PriceTracker) Ticks(key string) []float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return append([]float64(nil), pt.ticks[key]...)
}

// Prune drops every key whose newest point has left the window as of now
// and returns how many were dropped. Keys that stop being tracked, such as
// outcomes of rotated markets, would otherwise be kept forever.
func (pt *PriceTracker) Prune(now time.Time) int {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	cutoff := now.Add(-pt.window)
	var n int
	for key, pts := range pt.history {
		if len(pts) == 0 || !pts[len(pts)-1].Time.After(cutoff) {
			delete(pt.history, key)
			delete(pt.ticks, key)
			n++
		}
	}
	return n
}

// Len is the number of tracked keys.
func (pt *PriceTracker) Len() int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.history)
}

// trim removes points older than the window relative to now.
// The caller must hold pt.mu.
func (pt *PriceTracker) trim(key string, now time.Time) {
	cutoff := now.Add(-pt.window)
	pts := pt.history[key]

	i := 0
	for i < len(pts) && !pts[i].Time.After(cutoff) {
		i++
	}
	if i > 0 {
		pt.history[key] = pts[i:]
	}
}
