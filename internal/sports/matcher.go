// Package sports links finished games to the prediction markets that ask
// about them.
package sports

import (
	"regexp"
	"strings"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// Match confidences.
const (
	ConfidenceBoth   = 0.95
	ConfidenceSingle = 0.7
)

// questionPatterns are tried in order; the first hit wins.
var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)will (?:the )?(.+?) (?:beat|defeat|win against) (?:the )?(.+?)\??$`),
	regexp.MustCompile(`(?i)(.+?) vs\.? (.+?)[:.]? who will win`),
	regexp.MustCompile(`(?i)will (?:the )?(.+?) win`),
	regexp.MustCompile(`(?i)(.+?) to win`),
	regexp.MustCompile(`(?i)will (?:the )?(.+?) beat (?:the )?(.+?) on`),
}

// Match is a finished game tied to a market question.
type Match struct {
	Instrument domain.Instrument
	Game       domain.GameResult
	Team1      string
	Team2      string // empty for single-team questions
	// WinnerIndex is the outcome the game result settles to: 0 when Team1
	// won, 1 when Team2 won.
	WinnerIndex int
	Confidence  float64
}

// WinningOutcome returns the outcome the game result settles to.
func (m Match) WinningOutcome() domain.Outcome {
	return m.Instrument.Outcomes[m.WinnerIndex]
}

// ExtractTeams pulls the team names out of a market question. team2 is
// empty when the question names one team; both are empty when no pattern
// applies.
func ExtractTeams(question string) (team1, team2 string) {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, re := range questionPatterns {
		m := re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		team1 = strings.TrimSpace(m[1])
		if len(m) > 2 {
			team2 = strings.TrimSpace(m[2])
		}
		return team1, team2
	}
	return "", ""
}

// TeamsMatch reports whether a team name from a game result refers to the
// same team as a name taken from a question. Either name containing the
// other is a match; otherwise both must hit the same city alias group.
func TeamsMatch(gameTeam, questionTeam string) bool {
	g := strings.ToLower(strings.TrimSpace(gameTeam))
	q := strings.ToLower(strings.TrimSpace(questionTeam))
	if g == "" || q == "" {
		return false
	}
	if strings.Contains(q, g) || strings.Contains(g, q) {
		return true
	}
	for _, c := range cityAliases {
		if c.matches(g) && c.matches(q) {
			return true
		}
	}
	return false
}

// MatchGame ties game to inst. It reports false when the question is not
// about this game, when the question names two teams but only one played,
// or when the winner is neither named team.
func MatchGame(game domain.GameResult, inst domain.Instrument) (Match, bool) {
	team1, team2 := ExtractTeams(inst.Question)
	if team1 == "" {
		return Match{}, false
	}

	homeMatch := TeamsMatch(game.HomeTeam, team1) || (team2 != "" && TeamsMatch(game.HomeTeam, team2))
	awayMatch := TeamsMatch(game.AwayTeam, team1) || (team2 != "" && TeamsMatch(game.AwayTeam, team2))

	var confidence float64
	switch {
	case homeMatch && awayMatch:
		confidence = ConfidenceBoth
	case team2 == "" && (homeMatch || awayMatch):
		confidence = ConfidenceSingle
	default:
		return Match{}, false
	}

	var winner int
	switch {
	case game.Winner == domain.WinnerTie:
		return Match{}, false
	case TeamsMatch(game.Winner, team1):
		winner = 0
	case team2 != "" && TeamsMatch(game.Winner, team2):
		winner = 1
	default:
		return Match{}, false
	}

	return Match{
		Instrument:  inst,
		Game:        game,
		Team1:       team1,
		Team2:       team2,
		WinnerIndex: winner,
		Confidence:  confidence,
	}, true
}
