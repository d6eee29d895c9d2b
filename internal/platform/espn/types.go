package espn

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// scoreboard is the subset of the scoreboard response the client reads.
type scoreboard struct {
	Events []Event `json:"events"`
}

// Event is one game on a scoreboard.
type Event struct {
	ID           string        `json:"id"`
	Date         string        `json:"date"`
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	Competitions []Competition `json:"competitions"`
}

// Status carries the game clock and state.
type Status struct {
	DisplayClock string     `json:"displayClock"`
	Period       int        `json:"period"`
	Type         StatusType `json:"type"`
}

// StatusType.State is "pre", "in" or "post".
type StatusType struct {
	State       string `json:"state"`
	Completed   bool   `json:"completed"`
	Description string `json:"description"`
	ShortDetail string `json:"shortDetail"`
}

type Competition struct {
	Competitors []Competitor `json:"competitors"`
}

type Competitor struct {
	HomeAway string `json:"homeAway"`
	Score    string `json:"score"`
	Winner   bool   `json:"winner"`
	Team     Team   `json:"team"`
}

type Team struct {
	DisplayName      string `json:"displayName"`
	ShortDisplayName string `json:"shortDisplayName"`
	Abbreviation     string `json:"abbreviation"`
}

// Final reports whether the game is over.
func (e Event) Final() bool {
	return e.Status.Type.Completed || e.Status.Type.State == "post"
}

// ToGameResult converts a finished event. Events without exactly one home
// and one away competitor, or with an unparseable score, are rejected with
// domain.ErrMalformedData.
func (e Event) ToGameResult(league domain.League) (domain.GameResult, error) {
	if len(e.Competitions) == 0 {
		return domain.GameResult{}, fmt.Errorf("%w: event %s has no competition", domain.ErrMalformedData, e.ID)
	}
	comps := e.Competitions[0].Competitors
	if len(comps) != 2 {
		return domain.GameResult{}, fmt.Errorf("%w: event %s has %d competitors", domain.ErrMalformedData, e.ID, len(comps))
	}

	var home, away *Competitor
	for i := range comps {
		if comps[i].HomeAway == "home" {
			home = &comps[i]
		} else {
			away = &comps[i]
		}
	}
	if home == nil || away == nil {
		return domain.GameResult{}, fmt.Errorf("%w: event %s lacks a home or away side", domain.ErrMalformedData, e.ID)
	}

	hs, err := parseScore(home.Score)
	if err != nil {
		return domain.GameResult{}, fmt.Errorf("%w: event %s home score: %v", domain.ErrMalformedData, e.ID, err)
	}
	as, err := parseScore(away.Score)
	if err != nil {
		return domain.GameResult{}, fmt.Errorf("%w: event %s away score: %v", domain.ErrMalformedData, e.ID, err)
	}

	g := domain.GameResult{
		ID:        e.ID,
		League:    league,
		HomeTeam:  home.Team.DisplayName,
		AwayTeam:  away.Team.DisplayName,
		HomeScore: hs,
		AwayScore: as,
		Final:     e.Final(),
	}
	switch {
	case hs > as:
		g.Winner = g.HomeTeam
		g.Margin = hs - as
	case as > hs:
		g.Winner = g.AwayTeam
		g.Margin = as - hs
	default:
		g.Winner = domain.WinnerTie
	}
	if t, err := parseDate(e.Date); err == nil {
		g.StartTime = t
	}
	return g, nil
}

func parseScore(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// ESPN dates omit seconds ("2026-10-19T23:30Z").
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04Z07:00", s)
}
