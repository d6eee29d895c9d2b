// Package app provides the top-level application lifecycle for polystrat.
// It wires the infrastructure (record store, Redis, object storage,
// notifications) and runs the configured operating mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/polystrat/internal/config"
)

// Options carries per-invocation choices that do not belong in the config
// file.
type Options struct {
	// ReportLimit caps the trade list; zero lists everything.
	ReportLimit    int
	ReportStrategy string
	Since          time.Time

	// Month selects the archive month; zero means the previous month.
	Month time.Time
	// Force overwrites an existing archive object.
	Force bool

	// Out receives report output. Defaults to stdout.
	Out io.Writer
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, opts Options, logger *slog.Logger) *App {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, runs the configured mode and blocks until it
// finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("store", a.cfg.Store.Backend),
		slog.Bool("redis", a.cfg.Redis.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case config.ModePaper:
		return a.TradeMode(ctx, deps, false)
	case config.ModeLive:
		return a.TradeMode(ctx, deps, true)
	case config.ModeReport:
		return a.ReportMode(ctx, deps, a.opts.Out)
	case config.ModeArchive:
		return a.ArchiveMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
