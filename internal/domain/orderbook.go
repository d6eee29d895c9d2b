package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a validated book for one outcome. Bids are sorted best
// (highest) first and asks best (lowest) first.
type OrderBook struct {
	OutcomeID string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// Empty reports whether the book carries no levels at all.
func (b OrderBook) Empty() bool {
	return len(b.Bids) == 0 && len(b.Asks) == 0
}

// BestAsk returns the lowest ask. A missing ask is priced at 1.0 with no
// size: buying the outcome can never cost more than its payout.
func (b OrderBook) BestAsk() PriceLevel {
	if len(b.Asks) == 0 {
		return PriceLevel{Price: 1.0}
	}
	return b.Asks[0]
}

// BestBid returns the highest bid, or a zero level.
func (b OrderBook) BestBid() PriceLevel {
	if len(b.Bids) == 0 {
		return PriceLevel{}
	}
	return b.Bids[0]
}

// AskLiquidity is the quote-currency value resting at the best ask.
func (b OrderBook) AskLiquidity() float64 {
	lvl := b.BestAsk()
	return lvl.Price * lvl.Size
}
