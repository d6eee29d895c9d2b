// Package server exposes strategy state over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/server/middleware"
	"github.com/alanyoungcy/polystrat/internal/server/ws"
	"github.com/alanyoungcy/polystrat/internal/strategy"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
	// APIKey guards the control endpoints; empty disables auth.
	APIKey string
	// RatePerSec limits requests per client IP; zero disables the limit.
	RatePerSec float64
	RateBurst  int
}

// Runtime is the running engine as seen by the API.
type Runtime interface {
	States() []strategy.State
	Halt(name string) bool
	Resume(name string) bool
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the server's collaborators. Trades, States, Hub, Checks and
// Metrics may be nil.
type Deps struct {
	Runtime Runtime
	Trades  domain.TradeHistory
	// States serves cached state when the runtime has none (report mode).
	States domain.StateCache
	Hub    *ws.Hub
	Checks map[string]HealthCheck
	// Metrics is mounted on /metrics.
	Metrics http.Handler
}

// Server is the HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers routes and wraps them in the middleware chain.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	h := &handlers{deps: deps, logger: logger, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /api/state", h.states)
	mux.HandleFunc("GET /api/state/{strategy}", h.state)
	mux.HandleFunc("GET /api/trades", h.trades)

	auth := middleware.Auth(cfg.APIKey)
	mux.Handle("POST /api/strategies/{strategy}/halt", auth(http.HandlerFunc(h.halt)))
	mux.Handle("POST /api/strategies/{strategy}/resume", auth(http.HandlerFunc(h.resume)))
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	var handler http.Handler = mux
	if cfg.RatePerSec > 0 {
		handler = middleware.RateLimit(cfg.RatePerSec, cfg.RateBurst)(handler)
	}
	handler = middleware.Logging(logger)(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler; used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}
