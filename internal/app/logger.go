package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alanyoungcy/polystrat/internal/config"
)

// NewLogger builds the process logger. Output goes to stdout and, when
// cfg.File is set, to a size-rotated file as well. The returned func closes
// the file.
func NewLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	var w io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				l := newHandlerLogger(os.Stderr, cfg)
				l.Warn("log directory unavailable, logging to stderr only",
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
				return l, closeFn
			}
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(os.Stdout, file)
		closeFn = func() { _ = file.Close() }
	}

	return newHandlerLogger(w, cfg), closeFn
}

func newHandlerLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a config level name to a slog level. Unknown names
// select info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
