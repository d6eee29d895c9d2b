package domain

import "time"

// Outcome is one side of a binary instrument.
type Outcome struct {
	ID   string // CLOB token id
	Name string // "Yes", "Up", team name, ...
}

// Instrument is a tradable two-outcome market as listed by the venue.
type Instrument struct {
	ID       string
	Slug     string
	Question string
	Outcomes [2]Outcome
	// Prices are the venue's last displayed outcome prices. They are only used
	// to read resolution once the market is closed.
	Prices    [2]float64
	Active    bool
	Closed    bool
	Liquidity float64
	Volume    float64
	EndTime   time.Time
}

// ResolvedWinner reports the winning outcome index of a closed instrument.
// The venue leaves resolved markets at 1.0/0.0, so anything above 0.99 is
// treated as the settled side.
func (i Instrument) ResolvedWinner() (int, bool) {
	if !i.Closed {
		return -1, false
	}
	for idx, p := range i.Prices {
		if p > 0.99 {
			return idx, true
		}
	}
	return -1, false
}

// InstrumentFilter narrows ListInstruments.
type InstrumentFilter struct {
	Slugs     []string
	Tag       string // e.g. "sports"
	Active    bool
	MinVolume float64
	Limit     int
}

// MarketSnapshot is the per-cycle view of an instrument's top of book.
// It is never persisted.
type MarketSnapshot struct {
	Instrument Instrument
	BestAsk    [2]float64
	BestBid    [2]float64
	// AskLiquidity is best ask size * price in quote currency.
	AskLiquidity [2]float64
	FetchedAt    time.Time
}

// InstrumentID is a shorthand for Instrument.ID.
func (s MarketSnapshot) InstrumentID() string { return s.Instrument.ID }

// TimeToEnd returns the remaining time to the instrument's end, or a large
// value when the venue did not report one.
func (s MarketSnapshot) TimeToEnd(now time.Time) time.Duration {
	if s.Instrument.EndTime.IsZero() {
		return 24 * 365 * time.Hour
	}
	return s.Instrument.EndTime.Sub(now)
}

// OutcomeIndex returns the index of outcomeID in the instrument, or -1.
func (s MarketSnapshot) OutcomeIndex(outcomeID string) int {
	for i, o := range s.Instrument.Outcomes {
		if o.ID == outcomeID {
			return i
		}
	}
	return -1
}
