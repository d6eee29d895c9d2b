package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

type handlers struct {
	deps    Deps
	logger  *slog.Logger
	started time.Time
}

// GET /healthz
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Checks))
	for name, check := range h.deps.Checks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{
		"status":         http.StatusText(status),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"checks":         checks,
	})
}

// GET /api/state
func (h *handlers) states(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runtime == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not running")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Runtime.States())
}

// GET /api/state/{strategy}
func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("strategy")
	if h.deps.Runtime != nil {
		for _, st := range h.deps.Runtime.States() {
			if st.Strategy == name {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
	}
	if h.deps.States != nil {
		raw, err := h.deps.States.GetState(r.Context(), name)
		if err == nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("X-State-Source", "cache")
			w.Write(raw)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("state cache read failed", slog.String("strategy", name), slog.String("error", err.Error()))
		}
	}
	writeError(w, http.StatusNotFound, "unknown strategy")
}

// GET /api/trades?strategy=&limit=&offset=
func (h *handlers) trades(w http.ResponseWriter, r *http.Request) {
	if h.deps.Trades == nil {
		writeError(w, http.StatusServiceUnavailable, "no record store configured")
		return
	}
	opts := parseListOpts(r)
	trades, err := h.deps.Trades.ListTrades(r.Context(), opts)
	if err != nil {
		h.logger.Error("list trades", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "list trades failed")
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// POST /api/strategies/{strategy}/halt
func (h *handlers) halt(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "halted", func(name string) bool { return h.deps.Runtime.Halt(name) })
}

// POST /api/strategies/{strategy}/resume
func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "resumed", func(name string) bool { return h.deps.Runtime.Resume(name) })
}

func (h *handlers) control(w http.ResponseWriter, r *http.Request, verb string, apply func(string) bool) {
	if h.deps.Runtime == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not running")
		return
	}
	name := r.PathValue("strategy")
	if !apply(name) {
		writeError(w, http.StatusNotFound, "unknown strategy")
		return
	}
	h.logger.Warn("strategy "+verb+" via api", slog.String("strategy", name), slog.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusOK, map[string]string{"strategy": name, "status": verb})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts reads strategy, limit (default 50, max 500) and offset.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: 50, Strategy: q.Get("strategy")}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = min(n, 500)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		opts.Offset = n
	}
	return opts
}
