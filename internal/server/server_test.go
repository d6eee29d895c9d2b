package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/metrics"
	"github.com/alanyoungcy/polystrat/internal/strategy"
)

type fakeRuntime struct {
	halted map[string]bool
}

func (f *fakeRuntime) States() []strategy.State {
	return []strategy.State{{Strategy: "arbitrage", Cycles: 3, Halted: f.halted["arbitrage"]}}
}

func (f *fakeRuntime) Halt(name string) bool {
	if name != "arbitrage" {
		return false
	}
	f.halted[name] = true
	return true
}

func (f *fakeRuntime) Resume(name string) bool {
	if name != "arbitrage" {
		return false
	}
	delete(f.halted, name)
	return true
}

type fakeTrades struct{ opts domain.ListOpts }

func (f *fakeTrades) ListTrades(_ context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	f.opts = opts
	return []domain.TradeRecord{{ID: "t1", Strategy: opts.Strategy}}, nil
}

func (f *fakeTrades) LatestSnapshots(context.Context) ([]domain.PortfolioSnapshot, error) {
	return nil, nil
}

type fakeStates map[string][]byte

func (f fakeStates) SetState(context.Context, string, []byte) error { return nil }

func (f fakeStates) GetState(_ context.Context, name string) ([]byte, error) {
	if b, ok := f[name]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func newTestServer(cfg Config, deps Deps) http.Handler {
	return New(cfg, deps, slog.New(slog.NewTextHandler(io.Discard, nil))).Handler()
}

func do(h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(Config{}, Deps{Checks: map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	}})
	rec := do(h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = newTestServer(Config{}, Deps{Checks: map[string]HealthCheck{
		"postgres": func(context.Context) error { return errors.New("down") },
	}})
	rec = do(h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"down"`)
}

func TestStateEndpoints(t *testing.T) {
	rt := &fakeRuntime{halted: map[string]bool{}}
	h := newTestServer(Config{}, Deps{Runtime: rt, States: fakeStates{"crash": []byte(`{"strategy":"crash"}`)}})

	rec := do(h, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var states []strategy.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Len(t, states, 1)
	assert.Equal(t, uint64(3), states[0].Cycles)

	rec = do(h, http.MethodGet, "/api/state/arbitrage", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/state/crash", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cache", rec.Header().Get("X-State-Source"))

	rec = do(h, http.MethodGet, "/api/state/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlRequiresKey(t *testing.T) {
	rt := &fakeRuntime{halted: map[string]bool{}}
	h := newTestServer(Config{APIKey: "secret"}, Deps{Runtime: rt})

	rec := do(h, http.MethodPost, "/api/strategies/arbitrage/halt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, rt.halted["arbitrage"])

	rec = do(h, http.MethodPost, "/api/strategies/arbitrage/halt", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rt.halted["arbitrage"])

	rec = do(h, http.MethodPost, "/api/strategies/arbitrage/resume", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, rt.halted["arbitrage"])

	rec = do(h, http.MethodPost, "/api/strategies/unknown/halt", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// reads stay open
	rec = do(h, http.MethodGet, "/api/state", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTradesEndpoint(t *testing.T) {
	trades := &fakeTrades{}
	h := newTestServer(Config{}, Deps{Trades: trades})

	rec := do(h, http.MethodGet, "/api/trades?strategy=crash&limit=9999&offset=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ListOpts{Strategy: "crash", Limit: 500, Offset: 5}, trades.opts)
	assert.Contains(t, rec.Body.String(), `"t1"`)

	h = newTestServer(Config{}, Deps{})
	rec = do(h, http.MethodGet, "/api/trades", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitAndCORS(t *testing.T) {
	h := newTestServer(Config{RatePerSec: 1, RateBurst: 1, CORSOrigins: []string{"https://dash.example"}}, Deps{})

	rec := do(h, http.MethodGet, "/healthz", map[string]string{"Origin": "https://dash.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(h, http.MethodGet, "/healthz", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(Config{}, Deps{}), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	m := metrics.New()
	m.Rejected("arbitrage", domain.ReasonMaxPositions)
	rec = do(newTestServer(Config{}, Deps{Metrics: m.Handler()}), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`polystrat_admission_rejections_total{reason="max_positions",strategy="arbitrage"} 1`)
}
