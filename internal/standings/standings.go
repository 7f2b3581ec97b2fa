// Package standings folds scored matches into a ranked leaderboard.
package standings

import (
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/models"
)

// Aggregate computes the leaderboard for a set of matches. Unscored matches are ignored,
// so an event in progress always has a well-defined partial leaderboard. The result does
// not depend on the order of matches.
//
// Ranking is by wins, then point differential, then player ID ascending so that equal
// records still come out in a stable order. A stored tie counts as a game played with
// points, but as neither a win nor a loss.
func Aggregate(matches []models.Match) []models.LeaderboardEntry {
	entries := make(map[uuid.UUID]*models.LeaderboardEntry)
	entry := func(id uuid.UUID) *models.LeaderboardEntry {
		e, ok := entries[id]
		if !ok {
			e = &models.LeaderboardEntry{PlayerID: id}
			entries[id] = e
		}
		return e
	}

	credit := func(team []uuid.UUID, own, opp int) {
		for _, id := range team {
			e := entry(id)
			e.GamesPlayed++
			e.TotalPoints += own
			e.PointDifferential += own - opp
			switch {
			case own > opp:
				e.Wins++
			case own < opp:
				e.Losses++
			}
		}
	}

	for i := range matches {
		m := &matches[i]
		if !m.Scored() {
			continue
		}
		s1, s2 := *m.Team1Score, *m.Team2Score
		credit(m.Team1, s1, s2)
		credit(m.Team2, s2, s1)
	}

	board := make([]models.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if e.GamesPlayed > 0 {
			e.AvgPointDifferential = float64(e.PointDifferential) / float64(e.GamesPlayed)
		}
		board = append(board, *e)
	}

	sort.Slice(board, func(i, j int) bool {
		a, b := board[i], board[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.PointDifferential != b.PointDifferential {
			return a.PointDifferential > b.PointDifferential
		}
		return a.PlayerID.String() < b.PlayerID.String()
	})
	return board
}
