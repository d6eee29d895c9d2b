package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

const (
	gammaPageSize  = 100
	gammaMaxOffset = 2000
)

// TagSports selects sports-looking markets in ListMarkets. A league code
// ("NBA", "NFL", "MLB", "NHL") narrows to that league's keywords.
const TagSports = "sports"

var sportsKeywords = []string{
	"nba", "nfl", "mlb", "nhl", "ncaa",
	"lakers", "warriors", "celtics", "heat", "knicks",
	"chiefs", "49ers", "eagles", "cowboys", "bills",
	"yankees", "dodgers", "mets", "red sox",
	"basketball", "football", "baseball", "hockey",
	"will win", "beat", "to win", "vs",
}

var leagueKeywords = map[string][]string{
	"nba": {"nba", "basketball", "lakers", "warriors", "celtics", "nets", "knicks", "heat", "bucks", "76ers", "suns", "nuggets"},
	"nfl": {"nfl", "football", "chiefs", "49ers", "eagles", "cowboys", "bills", "dolphins", "ravens", "bengals"},
	"mlb": {"mlb", "baseball", "yankees", "dodgers", "mets", "red sox", "astros", "braves", "phillies"},
	"nhl": {"nhl", "hockey", "rangers", "bruins", "penguins", "maple leafs", "oilers"},
}

var updownWindow = regexp.MustCompile(`-updown-(\d+)m-`)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and resolution state.
type GammaClient struct {
	rest
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, opts ...Option) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	return &GammaClient{rest: newRest(baseURL, gammaRatePerSec, gammaBurst, opts)}
}

// ListMarkets returns binary instruments matching filter. With Slugs set
// each slug is resolved individually; otherwise open markets are paged
// until the venue runs out or the offset cap is reached.
//
// Malformed markets are skipped. The returned error joins every per-item and
// per-page failure; the instruments gathered so far are returned with it.
func (g *GammaClient) ListMarkets(ctx context.Context, filter domain.InstrumentFilter) ([]domain.Instrument, error) {
	if len(filter.Slugs) > 0 {
		return g.listBySlugs(ctx, filter.Slugs)
	}

	var (
		out  []domain.Instrument
		errs []error
	)
	for offset := 0; offset <= gammaMaxOffset; offset += gammaPageSize {
		page, err := g.marketsPage(ctx, filter.Active, offset)
		if err != nil {
			errs = append(errs, err)
			break
		}
		for i := range page {
			m := &page[i]
			if !matchesTag(m.Question, filter.Tag) {
				continue
			}
			inst, err := m.ToInstrument()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if filter.Active && !inst.Active {
				continue
			}
			if inst.Volume < filter.MinVolume {
				continue
			}
			out = append(out, inst)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return out, errors.Join(errs...)
			}
		}
		if len(page) < gammaPageSize {
			break
		}
	}
	return out, errors.Join(errs...)
}

func (g *GammaClient) marketsPage(ctx context.Context, active bool, offset int) ([]APIMarket, error) {
	params := url.Values{}
	if active {
		params.Set("closed", "false")
		params.Set("active", "true")
	}
	params.Set("limit", strconv.Itoa(gammaPageSize))
	params.Set("offset", strconv.Itoa(offset))

	body, err := g.do(ctx, nil, http.MethodGet, "/markets?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets offset=%d: %w", offset, err)
	}
	var page []APIMarket
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w: %v", domain.ErrMalformedData, err)
	}
	return page, nil
}

func (g *GammaClient) listBySlugs(ctx context.Context, slugs []string) ([]domain.Instrument, error) {
	var (
		out  []domain.Instrument
		errs []error
	)
	for _, slug := range slugs {
		insts, err := g.MarketsBySlug(ctx, slug)
		if err != nil {
			// Up/down slugs are generated ahead of listing; a miss is normal.
			if !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, err)
			}
		}
		out = append(out, insts...)
	}
	return out, errors.Join(errs...)
}

// MarketsBySlug resolves a market slug, falling back to an event slug for
// the up/down series. Closed markets are included so resolution can be
// read. Returns domain.ErrNotFound when neither lookup matches.
func (g *GammaClient) MarketsBySlug(ctx context.Context, slug string) ([]domain.Instrument, error) {
	params := url.Values{}
	params.Set("slug", slug)
	query := params.Encode()

	body, err := g.do(ctx, nil, http.MethodGet, "/markets?"+query, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}
	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w: %v", domain.ErrMalformedData, err)
	}
	if len(markets) > 0 {
		out := make([]domain.Instrument, 0, len(markets))
		var errs []error
		for i := range markets {
			inst, err := markets[i].ToInstrument()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, inst)
		}
		return out, errors.Join(errs...)
	}

	body, err = g.do(ctx, nil, http.MethodGet, "/events?"+query, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get event by slug %s: %w", slug, err)
	}
	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode events: %w: %v", domain.ErrMalformedData, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}

	window := slugWindow(slug)
	var (
		out  []domain.Instrument
		errs []error
	)
	for _, ev := range events {
		insts, evErrs := eventInstruments(ev, window)
		out = append(out, insts...)
		errs = append(errs, evErrs...)
	}
	return out, errors.Join(errs...)
}

// slugWindow reads the market window out of an up/down slug, or 0.
func slugWindow(slug string) time.Duration {
	m := updownWindow.FindStringSubmatch(slug)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Minute
}

// matchesTag applies the keyword filter for TagSports or a league code.
// Other tags, and no tag, match everything.
func matchesTag(question, tag string) bool {
	tag = strings.ToLower(tag)
	var keywords []string
	switch {
	case tag == "":
		return true
	case tag == TagSports:
		keywords = sportsKeywords
	default:
		kw, ok := leagueKeywords[tag]
		if !ok {
			return true
		}
		keywords = kw
	}
	q := strings.ToLower(question)
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
