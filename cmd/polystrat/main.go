// Command polystrat runs the prediction-market strategy engine. It loads
// configuration, validates it, sets up signal handling, and starts the
// application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alanyoungcy/polystrat/internal/app"
	"github.com/alanyoungcy/polystrat/internal/config"
	"github.com/alanyoungcy/polystrat/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (paper, live, report, archive)")
	strategies := flag.String("strategies", "", "comma-separated strategies to run, overriding the config")
	limit := flag.Int("limit", 50, "report: number of trades to list, 0 for all")
	strategyFilter := flag.String("strategy", "", "report: only show this strategy")
	since := flag.String("since", "", "report: only trades on or after this date (YYYY-MM-DD)")
	month := flag.String("month", "", "archive: month to archive (YYYY-MM), default previous month")
	force := flag.Bool("force", false, "archive: overwrite an existing archive")
	encryptKey := flag.String("encrypt-key", "", "write the configured private key, encrypted with the key password, to this path and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = strings.ToLower(*mode)
	}
	if *strategies != "" {
		cfg.Strategies = splitList(*strategies)
	}

	logger, closeLog := app.NewLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	if *encryptKey != "" {
		if err := writeEncryptedKey(cfg.Wallet, *encryptKey); err != nil {
			logger.Error("encrypt key failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("encrypted key written", slog.String("path", *encryptKey))
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	opts := app.Options{
		ReportLimit:    *limit,
		ReportStrategy: *strategyFilter,
		Force:          *force,
	}
	if *since != "" {
		t, err := time.Parse(time.DateOnly, *since)
		if err != nil {
			logger.Error("invalid -since", slog.String("value", *since), slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts.Since = t
	}
	if *month != "" {
		t, err := time.Parse("2006-01", *month)
		if err != nil {
			logger.Error("invalid -month", slog.String("value", *month), slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts.Month = t
	}

	redacted := cfg.Redacted()
	logger.Info("polystrat starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", redacted),
	)

	application := app.New(cfg, opts, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			application.Close()
			closeLog()
			os.Exit(1)
		}
	}

	logger.Info("polystrat stopped")
}

func writeEncryptedKey(w config.WalletConfig, path string) error {
	if w.PrivateKey == "" {
		return errors.New("no private key configured (set POLYSTRAT_WALLET_PRIVATE_KEY)")
	}
	data, err := crypto.EncryptKey(w.PrivateKey, w.KeyPassword, crypto.DefaultIterations)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
