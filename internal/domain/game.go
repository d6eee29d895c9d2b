package domain

import "time"

// League identifies a sports league known to the results source.
type League string

const (
	LeagueNBA   League = "NBA"
	LeagueNFL   League = "NFL"
	LeagueMLB   League = "MLB"
	LeagueNHL   League = "NHL"
	LeagueNCAAF League = "NCAAF"
	LeagueNCAAB League = "NCAAB"
	LeagueMLS   League = "MLS"
	LeagueEPL   League = "EPL"
)

// WinnerTie is GameResult.Winner for drawn games.
const WinnerTie = "TIE"

// GameResult is a finished game.
type GameResult struct {
	ID        string
	League    League
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
	Winner    string
	Margin    int
	Final     bool
	StartTime time.Time
}

// Teams returns the home and away team names.
func (g GameResult) Teams() [2]string { return [2]string{g.HomeTeam, g.AwayTeam} }
