package sports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

func lakersWarriors() domain.GameResult {
	return domain.GameResult{
		ID:        "401585601",
		League:    domain.LeagueNBA,
		HomeTeam:  "Los Angeles Lakers",
		AwayTeam:  "Golden State Warriors",
		HomeScore: 115,
		AwayScore: 108,
		Winner:    "Los Angeles Lakers",
		Margin:    7,
		Final:     true,
	}
}

func chiefsRavens() domain.GameResult {
	return domain.GameResult{
		ID:        "401547353",
		League:    domain.LeagueNFL,
		HomeTeam:  "Kansas City Chiefs",
		AwayTeam:  "Baltimore Ravens",
		HomeScore: 27,
		AwayScore: 20,
		Winner:    "Kansas City Chiefs",
		Margin:    7,
		Final:     true,
	}
}

func instrument(question string) domain.Instrument {
	return domain.Instrument{
		ID:       "0xcond",
		Slug:     "nba-game",
		Question: question,
		Outcomes: [2]domain.Outcome{{ID: "tok-yes", Name: "Yes"}, {ID: "tok-no", Name: "No"}},
		Prices:   [2]float64{0.93, 0.07},
		Active:   true,
	}
}

func TestExtractTeams(t *testing.T) {
	tests := []struct {
		question string
		team1    string
		team2    string
	}{
		{"Will the Lakers beat the Warriors?", "lakers", "warriors"},
		{"Will Lakers beat Warriors?", "lakers", "warriors"},
		{"WILL THE LAKERS BEAT THE WARRIORS?", "lakers", "warriors"},
		{"Lakers vs Warriors: Who will win?", "lakers", "warriors"},
		{"Lakers vs. Warriors: Who will win?", "lakers", "warriors"},
		{"Will the Lakers win?", "lakers", ""},
		{"Lakers to win", "lakers", ""},
		{"Will the Chiefs defeat the Ravens?", "chiefs", "ravens"},
		{"What is the weather today?", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			team1, team2 := ExtractTeams(tt.question)
			assert.Equal(t, tt.team1, team1)
			assert.Equal(t, tt.team2, team2)
		})
	}
}

func TestExtractTeamsTrailingDate(t *testing.T) {
	team1, team2 := ExtractTeams("Will the Lakers beat the Warriors on December 15?")
	assert.Equal(t, "lakers", team1)
	assert.Contains(t, team2, "warriors")
}

func TestTeamsMatch(t *testing.T) {
	tests := []struct {
		game     string
		question string
		want     bool
	}{
		{"Los Angeles Lakers", "Lakers", true},
		{"Lakers", "Los Angeles Lakers", true},
		{"Los Angeles Lakers", "LA Lakers", true},
		{"Golden State Warriors", "Warriors", true},
		{"Golden State Warriors", "GSW", true},
		{"Kansas City Chiefs", "KC", true},
		{"Los Angeles Lakers", "Warriors", false},
		{"Atlanta Hawks", "LA Clippers", false},
		{"Boston Celtics", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.game+"/"+tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, TeamsMatch(tt.game, tt.question))
		})
	}
}

func TestMatchGame(t *testing.T) {
	tests := []struct {
		name       string
		game       domain.GameResult
		question   string
		ok         bool
		winner     int
		confidence float64
	}{
		{"home winner named first", lakersWarriors(), "Will the Lakers beat the Warriors?", true, 0, ConfidenceBoth},
		{"home winner named second", lakersWarriors(), "Will the Warriors beat the Lakers?", true, 1, ConfidenceBoth},
		{"versus form", chiefsRavens(), "Chiefs vs Ravens: Who will win?", true, 0, ConfidenceBoth},
		{"single team", lakersWarriors(), "Will the Lakers win?", true, 0, ConfidenceSingle},
		{"single team lost", lakersWarriors(), "Will the Warriors win?", false, 0, 0},
		{"other game", lakersWarriors(), "Will the Chiefs beat the Ravens?", false, 0, 0},
		{"one of two teams played", lakersWarriors(), "Will the Lakers beat the Celtics?", false, 0, 0},
		{"unparseable", lakersWarriors(), "Lakers season total wins over 50.5?", false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := MatchGame(tt.game, instrument(tt.question))
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.winner, m.WinnerIndex)
			assert.InDelta(t, tt.confidence, m.Confidence, 1e-9)
		})
	}
}

func TestMatchGameTie(t *testing.T) {
	g := lakersWarriors()
	g.AwayScore = g.HomeScore
	g.Winner = domain.WinnerTie
	g.Margin = 0

	_, ok := MatchGame(g, instrument("Will the Lakers beat the Warriors?"))
	assert.False(t, ok)
}

func TestMatchWinningOutcome(t *testing.T) {
	m, ok := MatchGame(lakersWarriors(), instrument("Will the Warriors beat the Lakers?"))
	require.True(t, ok)
	assert.Equal(t, "tok-no", m.WinningOutcome().ID)
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("la lakers", "la"))
	assert.True(t, containsWord("the 49ers", "49ers"))
	assert.True(t, containsWord("boston red sox", "red sox"))
	assert.False(t, containsWord("atlanta", "la"))
	assert.False(t, containsWord("clan", "la"))
}
