package models

import "github.com/google/uuid"

// LeaderboardEntry is a derived standings row. It is never stored; it is recomputed
// from scored matches on every request.
type LeaderboardEntry struct {
	PlayerID             uuid.UUID `json:"player_id"`
	Wins                 int       `json:"wins"`
	Losses               int       `json:"losses"`
	TotalPoints          int       `json:"total_points"`
	PointDifferential    int       `json:"point_differential"`
	GamesPlayed          int       `json:"games_played"`
	AvgPointDifferential float64   `json:"avg_point_differential"`
}
