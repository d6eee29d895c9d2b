package strategy

import (
	"context"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// takeSnapshot reads both outcome books of inst. It reports false when
// either book came back empty, which the sources use to signal a failed
// fetch; the instrument is then simply not considered this cycle.
func takeSnapshot(ctx context.Context, src domain.MarketSource, inst domain.Instrument, now time.Time) (domain.MarketSnapshot, bool) {
	snap := domain.MarketSnapshot{Instrument: inst, FetchedAt: now}
	for i, o := range inst.Outcomes {
		if ctx.Err() != nil {
			return snap, false
		}
		book := src.OrderBook(ctx, o.ID)
		if book.Empty() {
			return snap, false
		}
		ask := book.BestAsk()
		snap.BestAsk[i] = ask.Price
		snap.BestBid[i] = book.BestBid().Price
		snap.AskLiquidity[i] = ask.Price * ask.Size
	}
	return snap, true
}
