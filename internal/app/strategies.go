package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/polystrat/internal/config"
	"github.com/alanyoungcy/polystrat/internal/crypto"
	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/feed"
	"github.com/alanyoungcy/polystrat/internal/platform/espn"
	"github.com/alanyoungcy/polystrat/internal/platform/polymarket"
	"github.com/alanyoungcy/polystrat/internal/strategy"
)

// sources are the venue clients and the fail-soft feeds built on them.
type sources struct {
	gamma  *polymarket.GammaClient
	clob   *polymarket.ClobClient
	stream *polymarket.BookStream
	// markets serves polled books; streamed prefers websocket books and is
	// only set when the stream is enabled.
	markets  *feed.Markets
	streamed *feed.Markets
	results  *feed.Results
}

func loopParams(l config.LoopConfig) strategy.Params {
	return strategy.Params{
		StartingCapital:   l.StartingCapital,
		PollInterval:      l.PollInterval.Duration,
		ErrorBackoff:      l.ErrorBackoff,
		MaxPositions:      l.MaxPositions,
		MinCash:           l.MinCash,
		MaxDailyLoss:      l.MaxDailyLoss,
		SnapshotInterval:  l.SnapshotInterval.Duration,
		BroadcastInterval: l.BroadcastInterval.Duration,
	}
}

func arbitrageConfig(c config.ArbitrageConfig) strategy.ArbitrageConfig {
	tiers := make([]strategy.Tier, len(c.Tiers))
	for i, t := range c.Tiers {
		tiers[i] = strategy.Tier{MinEdge: t.MinEdge, MaxSize: t.MaxSize}
	}
	return strategy.ArbitrageConfig{
		Params:             loopParams(c.LoopConfig),
		MinEdge:            c.MinEdge,
		Slippage:           c.Slippage,
		Tiers:              tiers,
		MinLiquidity:       c.MinLiquidity,
		LiquidityFraction:  c.LiquidityFraction,
		SettlementInterval: c.SettlementInterval.Duration,
		MarketLimit:        c.MarketLimit,
		ExcludedPatterns:   c.ExcludedPatterns,
	}
}

func crashConfig(c config.CrashConfig) strategy.CrashConfig {
	assets := make([]string, len(c.Assets))
	for i, a := range c.Assets {
		assets[i] = strings.ToLower(a)
	}
	return strategy.CrashConfig{
		Params:             loopParams(c.LoopConfig),
		Assets:             assets,
		MarketWindow:       c.MarketWindow.Duration,
		Lookback:           c.Lookback.Duration,
		NoBuyWindow:        c.NoBuyWindow.Duration,
		CrashPrice:         c.CrashPrice,
		RecentHighMin:      c.RecentHighMin,
		MinDrop:            c.MinDrop,
		ProfitTarget:       c.ProfitTarget,
		StopLoss:           c.StopLoss,
		ForceExitWindow:    c.ForceExitWindow.Duration,
		MaxPositionSize:    c.MaxPositionSize,
		StabilizationTicks: c.StabilizationTicks,
		RequireBounce:      c.RequireBounce,
		MinBounce:          c.MinBounce,
		Cooldown:           c.Cooldown.Duration,
	}
}

func sniperConfig(c config.SniperConfig) strategy.SniperConfig {
	leagues := make([]domain.League, len(c.Leagues))
	for i, l := range c.Leagues {
		leagues[i] = domain.League(strings.ToUpper(l))
	}
	return strategy.SniperConfig{
		Params:             loopParams(c.LoopConfig),
		Leagues:            leagues,
		GameScanInterval:   c.GameScanInterval.Duration,
		MarketScanInterval: c.MarketScanInterval.Duration,
		SettlementInterval: c.SettlementInterval.Duration,
		MarketTag:          c.MarketTag,
		MarketLimit:        c.MarketLimit,
		MinMargin:          c.MinMargin,
		MinConfidence:      c.MinConfidence,
		MinPrice:           c.MinPrice,
		MaxPrice:           c.MaxPrice,
		BidPrice:           c.BidPrice,
		OrderSize:          c.OrderSize,
		MaxPerMarket:       c.MaxPerMarket,
		MaxTotalExposure:   c.MaxTotalExposure,
	}
}

// restOptions applies the configured timeout and rate overrides.
func restOptions(timeout config.Duration, perSec float64, burst int) []polymarket.Option {
	var opts []polymarket.Option
	if timeout.Duration > 0 {
		opts = append(opts, polymarket.WithHTTPClient(&http.Client{Timeout: timeout.Duration}))
	}
	if perSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, polymarket.WithRateLimit(perSec, burst))
	}
	return opts
}

// buildSources creates the market and results feeds. clob is the client
// used for books; live mode passes its authenticated client so one rate
// budget covers both books and orders.
func buildSources(cfg *config.Config, clob *polymarket.ClobClient, logger *slog.Logger) *sources {
	pm := cfg.Polymarket
	src := &sources{
		gamma: polymarket.NewGammaClient(pm.GammaHost, restOptions(pm.RequestTimeout, pm.GammaRate, pm.GammaBurst)...),
		clob:  clob,
	}
	if src.clob == nil {
		src.clob = polymarket.NewClobClient(pm.ClobHost, nil, crypto.Credentials{},
			restOptions(pm.RequestTimeout, pm.ClobRate, pm.ClobBurst)...)
	}

	var opts []feed.MarketsOption
	if pm.StaleListings.Duration > 0 {
		opts = append(opts, feed.WithStaleListings(pm.StaleListings.Duration))
	}
	src.markets = feed.NewMarkets(src.gamma, src.clob, logger, opts...)

	if pm.Stream && cfg.Runs(config.StrategyCrash) {
		src.stream = polymarket.NewBookStream(pm.WsHost, logger)
		streamOpts := append([]feed.MarketsOption{feed.WithStream(src.stream, pm.StreamMaxAge.Duration)}, opts...)
		src.streamed = feed.NewMarkets(src.gamma, src.clob, logger, streamOpts...)
	}

	if cfg.Runs(config.StrategySniper) {
		src.results = feed.NewResults(espn.NewClient(cfg.ESPN.BaseURL), logger)
	}
	return src
}

// registry binds the config strategy names to constructors over src.
func registry(cfg *config.Config, src *sources, logger *slog.Logger) *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register(config.StrategyArbitrage, func() (strategy.Strategy, error) {
		return strategy.NewArbitrage(arbitrageConfig(cfg.Arbitrage), src.markets, logger), nil
	})
	r.Register(config.StrategyCrash, func() (strategy.Strategy, error) {
		var markets domain.MarketSource = src.markets
		if src.streamed != nil {
			markets = src.streamed
		}
		return strategy.NewCrashReversion(crashConfig(cfg.Crash), markets, logger), nil
	})
	r.Register(config.StrategySniper, func() (strategy.Strategy, error) {
		if src.results == nil {
			return nil, errors.New("no results source")
		}
		return strategy.NewSniper(sniperConfig(cfg.Sniper), src.markets, src.results, logger), nil
	})
	return r
}

// buildStrategies instantiates the configured strategies in config order.
func buildStrategies(cfg *config.Config, src *sources, logger *slog.Logger) ([]strategy.Strategy, error) {
	reg := registry(cfg, src, logger)
	out := make([]strategy.Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		s, err := reg.Build(name)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}
