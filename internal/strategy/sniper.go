package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/sports"
)

// SniperName is the registry name of the settlement-sniping strategy.
const SniperName = "settlement_sniper"

// Settlement-sniping skip reasons.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonPriceTooLow   = "price_too_low"
	ReasonPriceTooHigh  = "price_too_high"
	ReasonMarketCap     = "market_cap"
	ReasonExposureCap   = "exposure_cap"
)

// SniperConfig parameterizes the settlement sniper.
type SniperConfig struct {
	Params
	Leagues            []domain.League
	GameScanInterval   time.Duration
	MarketScanInterval time.Duration
	SettlementInterval time.Duration
	MarketTag          string
	MarketLimit        int
	MinMargin          int
	MinConfidence      float64
	MinPrice           float64
	MaxPrice           float64
	BidPrice           float64
	OrderSize          float64 // dollars per order
	MaxPerMarket       float64
	MaxTotalExposure   float64
}

// DefaultSniperConfig returns the production parameters.
func DefaultSniperConfig() SniperConfig {
	return SniperConfig{
		Params: Params{
			StartingCapital: 2000,
			PollInterval:    5 * time.Second,
			MaxPositions:    20,
			MinCash:         100,
		},
		Leagues:            []domain.League{domain.LeagueNBA, domain.LeagueNFL},
		GameScanInterval:   30 * time.Second,
		MarketScanInterval: 10 * time.Second,
		SettlementInterval: 30 * time.Second,
		MarketTag:          "sports",
		MarketLimit:        500,
		MinMargin:          5,
		MinConfidence:      0.85,
		MinPrice:           0.90,
		MaxPrice:           0.97,
		BidPrice:           0.96,
		OrderSize:          100,
		MaxPerMarket:       500,
		MaxTotalExposure:   2000,
	}
}

// SnipeCandidate is a matched market priced for evaluation.
type SnipeCandidate struct {
	Match sports.Match
	// Price is the current ask of the winning outcome.
	Price float64
}

// EvaluateSnipe scores a matched market against the sniper thresholds and
// exposure caps. marketExposure and totalExposure are the dollars already
// committed to this instrument and overall.
func EvaluateSnipe(c SnipeCandidate, cfg SniperConfig, marketExposure, totalExposure float64, now time.Time) domain.Opportunity {
	inst := c.Match.Instrument
	game := c.Match.Game
	winning := c.Match.WinningOutcome()

	var edge float64
	if c.Price > 0 {
		edge = (1 - c.Price) / c.Price
	}
	opp := domain.Opportunity{
		Strategy:     SniperName,
		InstrumentID: inst.ID,
		Slug:         inst.Slug,
		Question:     inst.Question,
		Edge:         edge,
		Confidence:   c.Match.Confidence,
		EndTime:      inst.EndTime,
		CreatedAt:    now,
		Meta: map[string]any{
			"game_id":       game.ID,
			"league":        string(game.League),
			"matchup":       fmt.Sprintf("%s @ %s", game.AwayTeam, game.HomeTeam),
			"winner":        game.Winner,
			"margin":        game.Margin,
			"winning_side":  winning.Name,
			"current_price": c.Price,
		},
	}

	switch {
	case c.Match.Confidence < cfg.MinConfidence:
		return opp.Skip(ReasonLowConfidence)
	case c.Price < cfg.MinPrice:
		return opp.Skip(ReasonPriceTooLow)
	case c.Price > cfg.MaxPrice:
		return opp.Skip(ReasonPriceTooHigh)
	case totalExposure+cfg.OrderSize > cfg.MaxTotalExposure:
		return opp.Skip(ReasonExposureCap)
	case marketExposure+cfg.OrderSize > cfg.MaxPerMarket:
		return opp.Skip(ReasonMarketCap)
	}

	qty := cfg.OrderSize / cfg.BidPrice
	opp.Size = cfg.OrderSize
	opp.ExpectedPayout = qty
	opp.ExpectedPnL = qty - cfg.OrderSize
	opp.Legs = []domain.LegOrder{{
		OutcomeID:   winning.ID,
		OutcomeName: winning.Name,
		Side:        domain.OrderSideBuy,
		Price:       cfg.BidPrice,
		Quantity:    qty,
		Maker:       true,
	}}
	opp = opp.Take()
	opp.Reason = fmt.Sprintf("%s won by %d", game.Winner, game.Margin)
	return opp
}

// Sniper rests bids just under $1 on markets whose game has already been
// decided, and collects the payout when the market resolves.
type Sniper struct {
	cfg     SniperConfig
	markets domain.MarketSource
	results domain.SportsResultSource
	logger  *slog.Logger

	games       []domain.GameResult
	instruments []domain.Instrument
	seen        map[string]bool
	// evaluate is set by a game scan and consumed by the next Entries.
	evaluate bool

	lastGameScan   time.Time
	lastMarketScan time.Time
	lastSettlement time.Time
}

// NewSniper creates the settlement sniper.
func NewSniper(cfg SniperConfig, markets domain.MarketSource, results domain.SportsResultSource, logger *slog.Logger) *Sniper {
	return &Sniper{
		cfg:     cfg,
		markets: markets,
		results: results,
		logger:  logger.With(slog.String("strategy", SniperName)),
		seen:    make(map[string]bool),
	}
}

// Name returns the strategy identifier.
func (s *Sniper) Name() string { return SniperName }

// Params returns the loop parameters.
func (s *Sniper) Params() Params { return s.cfg.Params }

// Refresh rescans finished games and sports markets on their own cadences.
func (s *Sniper) Refresh(ctx context.Context, now time.Time) error {
	if now.Sub(s.lastGameScan) >= s.cfg.GameScanInterval {
		s.lastGameScan = now
		s.evaluate = true
		s.games = s.games[:0]
		for _, league := range s.cfg.Leagues {
			for _, g := range s.results.FinishedGames(ctx, league) {
				if !g.Final || s.seen[g.ID] || g.Margin < s.cfg.MinMargin {
					continue
				}
				s.games = append(s.games, g)
			}
		}
		if len(s.games) > 0 {
			s.logger.InfoContext(ctx, "finished games",
				slog.Int("count", len(s.games)),
				slog.Int("min_margin", s.cfg.MinMargin),
			)
		}
	}

	if now.Sub(s.lastMarketScan) >= s.cfg.MarketScanInterval {
		s.lastMarketScan = now
		s.instruments = s.markets.ListInstruments(ctx, domain.InstrumentFilter{
			Tag:    s.cfg.MarketTag,
			Active: true,
			Limit:  s.cfg.MarketLimit,
		})
	}
	return nil
}

// Exits settles positions whose market has resolved.
func (s *Sniper) Exits(ctx context.Context, book Book, now time.Time) []Exit {
	if now.Sub(s.lastSettlement) < s.cfg.SettlementInterval {
		return nil
	}
	s.lastSettlement = now

	open := book.OpenPositions()
	if len(open) == 0 {
		return nil
	}
	return settleResolved(ctx, s.markets, open)
}

// Entries matches every unseen game against the current sports markets,
// once per game scan. Markets that do not mention the game produce no
// decision at all.
func (s *Sniper) Entries(ctx context.Context, book Book, now time.Time) []domain.Opportunity {
	out := make([]domain.Opportunity, 0)
	if !s.evaluate {
		return out
	}
	s.evaluate = false
	if len(s.games) == 0 || len(s.instruments) == 0 {
		return out
	}

	// Dollars committed by opportunities taken earlier in this cycle.
	pending := make(map[string]float64)
	var pendingTotal float64

	var cands []SnipeCandidate
	for _, g := range s.games {
		if s.seen[g.ID] {
			continue
		}
		for _, inst := range s.instruments {
			if inst.Closed {
				continue
			}
			m, ok := sports.MatchGame(g, inst)
			if !ok {
				continue
			}
			if book.HasOpen(inst.ID) {
				// Already sniped on an earlier cycle.
				s.seen[g.ID] = true
				continue
			}
			cands = append(cands, SnipeCandidate{Match: m, Price: s.winningPrice(ctx, m)})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return snipeEdge(cands[i].Price) > snipeEdge(cands[j].Price)
	})

	for _, c := range cands {
		id := c.Match.Instrument.ID
		opp := EvaluateSnipe(c, s.cfg,
			book.Exposure(id)+pending[id],
			book.Exposure("")+pendingTotal,
			now)
		if opp.Taken() {
			pending[id] += opp.Size
			pendingTotal += opp.Size
			s.logger.InfoContext(ctx, "snipe candidate",
				slog.String("instrument", c.Match.Instrument.Slug),
				slog.String("winner", c.Match.Game.Winner),
				slog.Float64("price", c.Price),
			)
		}
		out = append(out, opp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Taken() && !out[j].Taken()
	})
	return out
}

// winningPrice reads the winning outcome's ask, falling back to the
// market's quoted price when its book is empty.
func (s *Sniper) winningPrice(ctx context.Context, m sports.Match) float64 {
	book := s.markets.OrderBook(ctx, m.WinningOutcome().ID)
	if len(book.Asks) > 0 {
		return book.BestAsk().Price
	}
	return m.Instrument.Prices[m.WinnerIndex]
}

func snipeEdge(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return (1 - price) / price
}
