package feed

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// GameFetcher returns finished games, e.g. *espn.Client.
type GameFetcher interface {
	FinishedGames(ctx context.Context, league domain.League) ([]domain.GameResult, error)
}

// Results is the fail-soft domain.SportsResultSource.
type Results struct {
	fetcher GameFetcher
	logger  *slog.Logger
}

var _ domain.SportsResultSource = (*Results)(nil)

func NewResults(fetcher GameFetcher, logger *slog.Logger) *Results {
	return &Results{fetcher: fetcher, logger: logger.With(slog.String("component", "results_feed"))}
}

// FinishedGames returns the games that decoded; failures are logged.
func (r *Results) FinishedGames(ctx context.Context, league domain.League) []domain.GameResult {
	games, err := r.fetcher.FinishedGames(ctx, league)
	if err != nil {
		r.logger.Warn("fetching finished games",
			slog.String("league", string(league)),
			slog.Int("games", len(games)),
			slog.String("error", err.Error()),
		)
	}
	return games
}
