package polymarket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

func apiMarket(id, question string) map[string]any {
	return map[string]any{
		"id":              id,
		"conditionId":     "0x" + id,
		"question":        question,
		"slug":            "slug-" + id,
		"active":          true,
		"closed":          false,
		"acceptingOrders": true,
		"outcomes":        `["Yes","No"]`,
		"outcomePrices":   `["0.45","0.55"]`,
		"clobTokenIds":    fmt.Sprintf(`["%s-yes","%s-no"]`, id, id),
		"volume":          "1500.5",
		"liquidity":       2500,
		"endDate":         "2026-11-01T00:00:00Z",
	}
}

func newGammaTest(t *testing.T, h http.HandlerFunc) *GammaClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGammaClient(srv.URL, WithRateLimit(1000, 100))
}

func TestToInstrument(t *testing.T) {
	raw, err := json.Marshal(apiMarket("m1", "Will it rain?"))
	require.NoError(t, err)
	var m APIMarket
	require.NoError(t, json.Unmarshal(raw, &m))

	inst, err := m.ToInstrument()
	require.NoError(t, err)
	assert.Equal(t, "0xm1", inst.ID)
	assert.Equal(t, "m1-yes", inst.Outcomes[0].ID)
	assert.Equal(t, "No", inst.Outcomes[1].Name)
	assert.Equal(t, [2]float64{0.45, 0.55}, inst.Prices)
	assert.InDelta(t, 1500.5, inst.Volume, 1e-9)
	assert.InDelta(t, 2500, inst.Liquidity, 1e-9)
	assert.True(t, inst.Active)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), inst.EndTime)
}

func TestToInstrumentRejectsNonBinary(t *testing.T) {
	m := APIMarket{ID: "x", Outcomes: `["A","B","C"]`, ClobTokenIDs: `["1","2","3"]`}
	_, err := m.ToInstrument()
	assert.ErrorIs(t, err, domain.ErrMalformedData)

	m = APIMarket{ID: "x", Outcomes: `not json`, ClobTokenIDs: `["1","2"]`}
	_, err = m.ToInstrument()
	assert.ErrorIs(t, err, domain.ErrMalformedData)
}

func TestListMarketsPagesAndSkipsMalformed(t *testing.T) {
	var calls int
	c := newGammaTest(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var page []map[string]any
		switch offset {
		case 0:
			for i := range gammaPageSize {
				page = append(page, apiMarket(fmt.Sprintf("a%d", i), "Q"))
			}
			bad := apiMarket("bad", "Q")
			bad["clobTokenIds"] = `["only-one"]`
			page[5] = bad
		case gammaPageSize:
			page = append(page, apiMarket("last", "Q"))
		}
		json.NewEncoder(w).Encode(page)
	})

	insts, err := c.ListMarkets(t.Context(), domain.InstrumentFilter{Active: true})
	assert.ErrorIs(t, err, domain.ErrMalformedData)
	assert.Len(t, insts, gammaPageSize)
	assert.Equal(t, 2, calls)
}

func TestListMarketsSportsTagAndLimit(t *testing.T) {
	c := newGammaTest(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			apiMarket("1", "Will the Lakers beat the Warriors?"),
			apiMarket("2", "Will BTC close above 100k?"),
			apiMarket("3", "Chiefs vs Ravens"),
			apiMarket("4", "Celtics vs Heat"),
		})
	})

	insts, err := c.ListMarkets(t.Context(), domain.InstrumentFilter{Tag: TagSports, Active: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "0x1", insts[0].ID)
	assert.Equal(t, "0x3", insts[1].ID)

	insts, err = c.ListMarkets(t.Context(), domain.InstrumentFilter{Tag: "NFL", Active: true})
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, "0x3", insts[0].ID)
}

func TestMarketsBySlugFallsBackToEvents(t *testing.T) {
	slug := "btc-updown-15m-1760000900"
	c := newGammaTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, slug, r.URL.Query().Get("slug"))
		switch r.URL.Path {
		case "/markets":
			w.Write([]byte(`[]`))
		case "/events":
			m := apiMarket("ud", "Bitcoin Up or Down")
			m["outcomes"] = `["Up","Down"]`
			m["slug"] = ""
			json.NewEncoder(w).Encode([]map[string]any{{
				"slug":      slug,
				"startTime": "2026-10-19T12:00:00Z",
				"closed":    false,
				"markets":   []map[string]any{m},
			}})
		}
	})

	insts, err := c.MarketsBySlug(t.Context(), slug)
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, slug, insts[0].Slug)
	assert.Equal(t, "Up", insts[0].Outcomes[0].Name)
	assert.Equal(t, time.Date(2026, 10, 19, 12, 15, 0, 0, time.UTC), insts[0].EndTime)
}

func TestListBySlugsIgnoresMisses(t *testing.T) {
	c := newGammaTest(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slug") == "known" && r.URL.Path == "/markets" {
			json.NewEncoder(w).Encode([]map[string]any{apiMarket("k", "Q")})
			return
		}
		w.Write([]byte(`[]`))
	})

	insts, err := c.ListMarkets(t.Context(), domain.InstrumentFilter{Slugs: []string{"missing", "known"}})
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, "0xk", insts[0].ID)
}

func TestGammaStatusMapping(t *testing.T) {
	c := newGammaTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.MarketsBySlug(t.Context(), "x")
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	c = newGammaTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err = c.MarketsBySlug(t.Context(), "x")
	assert.ErrorIs(t, err, domain.ErrTransientIO)
}

func TestSlugWindow(t *testing.T) {
	assert.Equal(t, 15*time.Minute, slugWindow("eth-updown-15m-1760000900"))
	assert.Equal(t, 5*time.Minute, slugWindow("sol-updown-5m-1"))
	assert.Zero(t, slugWindow("will-it-rain"))
}
