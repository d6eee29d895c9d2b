package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// Dedup suppresses identical order requests seen within a time-to-live
// window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // fingerprint -> last seen
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a request as a duplicate if an
// identical one was seen within ttl.
func NewDedup(ttl time.Duration, now func() time.Time) *Dedup {
	if now == nil {
		now = time.Now
	}
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  now,
	}
}

// IsDuplicate reports whether req repeats a request seen within the TTL.
// A request that is not a duplicate is recorded.
func (d *Dedup) IsDuplicate(req domain.OrderRequest) bool {
	key := fingerprint(req)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Forget drops req so an identical retry is accepted.
func (d *Dedup) Forget(req domain.OrderRequest) {
	d.mu.Lock()
	delete(d.seen, fingerprint(req))
	d.mu.Unlock()
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// Len returns the number of tracked fingerprints.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func fingerprint(req domain.OrderRequest) string {
	return fmt.Sprintf("%s|%s|%s|%.6f|%.6f|%t", req.Strategy, req.OutcomeID, req.Side, req.Price, req.Size, req.Maker)
}
