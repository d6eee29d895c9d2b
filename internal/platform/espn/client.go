// Package espn reads game results from ESPN's public scoreboard API.
package espn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

const (
	DefaultBaseURL = "https://site.api.espn.com/apis/site/v2/sports"
	userAgent      = "Mozilla/5.0 (compatible; polystrat/1.0)"
)

// leaguePaths maps leagues to scoreboard paths.
var leaguePaths = map[domain.League]string{
	domain.LeagueNBA:   "basketball/nba",
	domain.LeagueNFL:   "football/nfl",
	domain.LeagueMLB:   "baseball/mlb",
	domain.LeagueNHL:   "hockey/nhl",
	domain.LeagueNCAAF: "football/college-football",
	domain.LeagueNCAAB: "basketball/mens-college-basketball",
	domain.LeagueMLS:   "soccer/usa.1",
	domain.LeagueEPL:   "soccer/eng.1",
}

// ErrUnknownLeague is returned for leagues without a scoreboard path.
var ErrUnknownLeague = errors.New("espn: unknown league")

// Client fetches scoreboards.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a scoreboard client. An empty baseURL selects
// DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Scoreboard returns today's events for league.
func (c *Client) Scoreboard(ctx context.Context, league domain.League) ([]Event, error) {
	path, ok := leaguePaths[league]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLeague, league)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("espn: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path+"/scoreboard", nil)
	if err != nil {
		return nil, fmt.Errorf("espn: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("espn: %s scoreboard: %w: %v", league, domain.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("espn: read response: %w: %v", domain.ErrTransientIO, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("espn: %s scoreboard: %w", league, domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("espn: %s scoreboard: %w: HTTP %d", league, domain.ErrTransientIO, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("espn: %s scoreboard: HTTP %d", league, resp.StatusCode)
	}

	var sb scoreboard
	if err := json.Unmarshal(body, &sb); err != nil {
		return nil, fmt.Errorf("espn: decode scoreboard: %w: %v", domain.ErrMalformedData, err)
	}
	return sb.Events, nil
}

// FinishedGames returns the completed games on today's scoreboard. Events
// that fail to convert are skipped; their errors are joined into the
// returned error alongside the games that did convert.
func (c *Client) FinishedGames(ctx context.Context, league domain.League) ([]domain.GameResult, error) {
	events, err := c.Scoreboard(ctx, league)
	if err != nil {
		return nil, err
	}

	var (
		out  []domain.GameResult
		errs []error
	)
	for _, ev := range events {
		if !ev.Final() {
			continue
		}
		g, err := ev.ToGameResult(league)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, g)
	}
	return out, errors.Join(errs...)
}
