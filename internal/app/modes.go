package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/polystrat/internal/blob/s3"
	"github.com/alanyoungcy/polystrat/internal/config"
	"github.com/alanyoungcy/polystrat/internal/crypto"
	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/eventsink"
	"github.com/alanyoungcy/polystrat/internal/executor"
	"github.com/alanyoungcy/polystrat/internal/metrics"
	"github.com/alanyoungcy/polystrat/internal/platform/polymarket"
	"github.com/alanyoungcy/polystrat/internal/server"
	"github.com/alanyoungcy/polystrat/internal/server/ws"
	"github.com/alanyoungcy/polystrat/internal/strategy"
)

const (
	subscriberBuffer = 256
	cancelAllTimeout = 10 * time.Second
	streamTailCount  = 10
)

// TradeMode runs the configured strategy loops until ctx is cancelled.
// Paper mode fills every order in memory; live mode signs real orders
// against the CLOB. Both put the executor guard in front of the venue.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, live bool) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("live", live),
		slog.Any("strategies", a.cfg.Strategies),
	)

	var (
		venue domain.ExecutionGateway
		clob  *polymarket.ClobClient
	)
	if live {
		gw, client, err := a.buildLiveGateway(ctx)
		if err != nil {
			return err
		}
		venue, clob = gw, client
		defer a.cancelResting(client)
	} else {
		venue = executor.NewPaperGateway(a.logger)
	}
	gateway := executor.New(venue, a.logger,
		executor.WithDedupTTL(a.cfg.Executor.DedupTTL.Duration),
		executor.WithMaxOrderValue(a.cfg.Executor.MaxOrderValue),
	)

	src := buildSources(a.cfg, clob, a.logger)
	strategies, err := buildStrategies(a.cfg, src, a.logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gateway.Run(ctx) })

	bus := eventsink.NewBus()
	defer bus.Close()

	var recorder *eventsink.Recorder
	if deps.Records != nil {
		rc := a.cfg.Store.Recorder
		recorder = eventsink.NewRecorder(deps.Records, eventsink.RecorderConfig{
			QueueSize:     rc.QueueSize,
			FlushInterval: rc.FlushInterval.Duration,
			FlushAt:       rc.FlushAt,
			BatchSize:     rc.BatchSize,
		}, a.logger)
		g.Go(func() error { return recorder.Run(ctx) })
	}
	sink := eventsink.NewSink(bus, recorder, a.logger)

	reg := metrics.New()
	reg.ObserveExecutor(gateway.Stats)
	reg.ObserveBus(bus.Dropped)
	if recorder != nil {
		reg.ObserveRecorder(recorder.Stats)
	}

	loopOpts := []strategy.LoopOption{strategy.WithMetrics(reg)}
	if deps.Locks != nil {
		loopOpts = append(loopOpts, strategy.WithLocker(deps.Locks))
	}
	eng := &engine{}
	for _, s := range strategies {
		eng.loops = append(eng.loops, strategy.NewLoop(s, gateway, sink, a.logger, loopOpts...))
	}

	// Consumers subscribe before any loop starts so no record is missed.
	if deps.Signals != nil {
		events, unsubscribe := bus.Subscribe("relay", subscriberBuffer)
		relay := eventsink.NewRelay(deps.Signals, deps.States, a.logger)
		g.Go(func() error {
			defer unsubscribe()
			return relay.Run(ctx, events)
		})
	}

	if deps.Notifier != nil && deps.Notifier.Enabled() {
		events, unsubscribe := bus.Subscribe("notify", subscriberBuffer)
		g.Go(func() error {
			defer unsubscribe()
			return deps.Notifier.Run(ctx, events)
		})
	}

	if a.cfg.Server.Enabled {
		events, unsubscribe := bus.Subscribe("ws", subscriberBuffer)
		hub := ws.NewHub(ws.Config{Mode: a.cfg.Mode, StartedAt: time.Now()}, eng.snapshot, a.logger)
		g.Go(func() error {
			defer unsubscribe()
			return hub.Run(ctx, events)
		})

		srv := server.New(serverConfig(a.cfg.Server), server.Deps{
			Runtime: eng,
			Trades:  deps.History,
			States:  deps.States,
			Hub:     hub,
			Checks:  deps.Checks,
			Metrics: reg.Handler(),
		}, a.logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if src.stream != nil {
		g.Go(func() error { return src.stream.Run(ctx) })
	}

	for _, l := range eng.loops {
		g.Go(func() error { return l.Run(ctx) })
	}

	err = g.Wait()

	attrs := []any{slog.Any("executor", gateway.Stats()), slog.Any("bus_dropped", bus.Dropped())}
	if recorder != nil {
		attrs = append(attrs, slog.Any("recorder", recorder.Stats()))
	}
	a.logger.Info("trade mode stopped", attrs...)
	return err
}

// buildLiveGateway loads the wallet key, authenticates against the CLOB
// and returns the signing gateway together with its client.
func (a *App) buildLiveGateway(ctx context.Context) (*executor.ClobGateway, *polymarket.ClobClient, error) {
	w, pm := a.cfg.Wallet, a.cfg.Polymarket

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    w.PrivateKey,
		EncryptedKeyPath: w.EncryptedKeyPath,
		KeyPassword:      w.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("app: load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key, pm.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("app: create signer: %w", err)
	}

	creds := crypto.Credentials{Key: w.APIKey, Secret: w.APISecret, Passphrase: w.APIPassphrase}
	client := polymarket.NewClobClient(pm.ClobHost, signer, creds,
		restOptions(pm.RequestTimeout, pm.ClobRate, pm.ClobBurst)...)
	if !creds.Valid() {
		if _, err := client.DeriveAPIKey(ctx); err != nil {
			return nil, nil, fmt.Errorf("app: derive api key: %w", err)
		}
	}

	exchange := crypto.CTFExchange
	if pm.NegRisk {
		exchange = crypto.NegRiskCTFExchange
	}
	address := signer.Address().Hex()
	a.logger.InfoContext(ctx, "live trading enabled",
		slog.String("address", address),
		slog.Int("chain_id", signer.ChainID()),
		slog.String("exchange", exchange),
	)
	return executor.NewClobGateway(client, signer, address, exchange, a.logger), client, nil
}

// cancelResting pulls every open order on exit. Positions live in memory
// only, so a resting order outliving the process would be untracked.
func (a *App) cancelResting(client *polymarket.ClobClient) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelAllTimeout)
	defer cancel()
	if err := client.CancelAll(ctx); err != nil {
		a.logger.Warn("cancel all on shutdown failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("cancelled resting orders")
}

func serverConfig(s config.ServerConfig) server.Config {
	return server.Config{
		Addr:        s.Addr(),
		CORSOrigins: s.CORSOrigins,
		APIKey:      s.APIKey,
		RatePerSec:  s.RatePerSec,
		RateBurst:   s.RateBurst,
	}
}

// ReportMode prints the latest portfolios and recent trades from the record
// store, plus the Redis trade stream tail when Redis is configured.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies, w io.Writer) error {
	if deps.History == nil {
		return errors.New("app: report mode needs a record store")
	}

	snaps, err := deps.History.LatestSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("app: report: %w", err)
	}

	opts := domain.ListOpts{Limit: a.opts.ReportLimit, Strategy: a.opts.ReportStrategy}
	if !a.opts.Since.IsZero() {
		since := a.opts.Since
		opts.Since = &since
	}
	trades, err := deps.History.ListTrades(ctx, opts)
	if err != nil {
		return fmt.Errorf("app: report: %w", err)
	}

	var live []domain.TradeRecord
	if deps.Signals != nil {
		msgs, err := deps.Signals.StreamTail(ctx, eventsink.StreamTrades, streamTailCount)
		if err != nil {
			a.logger.WarnContext(ctx, "reading trade stream", slog.String("error", err.Error()))
		} else {
			live = decodeStreamTrades(msgs)
		}
	}

	writeReport(w, snaps, trades, live, time.Now())
	return nil
}

// ArchiveMode uploads one month of trades to object storage as JSONL.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.History == nil || deps.BlobWriter == nil {
		return errors.New("app: archive mode needs a record store and object storage")
	}

	month := a.opts.Month
	if month.IsZero() {
		month = PreviousMonth(time.Now())
	}

	reader := deps.BlobReader
	if a.opts.Force {
		reader = nil
	}
	archiver := s3blob.NewArchiver(deps.BlobWriter, reader, deps.History, a.logger)

	n, err := archiver.ArchiveTrades(ctx, month)
	if errors.Is(err, s3blob.ErrArchiveExists) {
		return fmt.Errorf("app: archive %s: %w (pass -force to overwrite)", month.Format("2006-01"), err)
	}
	if err != nil {
		return fmt.Errorf("app: archive %s: %w", month.Format("2006-01"), err)
	}
	a.logger.InfoContext(ctx, "archive complete",
		slog.String("month", month.Format("2006-01")),
		slog.String("path", s3blob.ArchivePath("trades", month)),
		slog.Int64("trades", n),
	)
	return nil
}

// PreviousMonth returns the first instant of the month before now, in UTC.
func PreviousMonth(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
}
