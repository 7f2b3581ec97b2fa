package schedule

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/models"
)

// partnerPatterns are the three ways to split a quartet into two teams:
// {0,1} vs {2,3}, {0,2} vs {1,3}, {0,3} vs {1,2}.
var partnerPatterns = [3][4]int{
	{0, 1, 2, 3},
	{0, 2, 1, 3},
	{0, 3, 1, 2},
}

// Doubles schedules 2v2 play in rotating quartets. Players beyond the largest multiple
// of four sit out; the bye window advances through the roster each round so byes are
// spread evenly. The partner pattern cycles every three rounds.
func Doubles(order []uuid.UUID, rounds int) []models.Round {
	n := len(order)
	if n == 0 {
		return nil
	}
	onCourt := n / 4 * 4
	numByes := n - onCourt

	out := make([]models.Round, 0, rounds)
	for r := 0; r < rounds; r++ {
		round := models.Round{Number: r + 1, Byes: make([]uuid.UUID, 0, numByes)}

		sitting := make(map[int]bool, numByes)
		start := (r * numByes) % n
		for k := 0; k < numByes; k++ {
			idx := (start + k) % n
			sitting[idx] = true
			round.Byes = append(round.Byes, order[idx])
		}

		active := make([]uuid.UUID, 0, onCourt)
		for i, p := range order {
			if !sitting[i] {
				active = append(active, p)
			}
		}
		if len(active) > 0 {
			active = rotate(active, r%len(active))
		}

		pattern := partnerPatterns[r%3]
		for q := 0; q+4 <= len(active); q += 4 {
			quartet := active[q : q+4]
			round.Matches = append(round.Matches, models.Match{
				RoundNumber: r + 1,
				CourtNumber: q/4 + 1,
				Team1:       []uuid.UUID{quartet[pattern[0]], quartet[pattern[1]]},
				Team2:       []uuid.UUID{quartet[pattern[2]], quartet[pattern[3]]},
			})
		}
		out = append(out, round)
	}
	return out
}

// rotate returns a copy of s shifted left by k.
func rotate(s []uuid.UUID, k int) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	out = append(out, s[k:]...)
	return append(out, s[:k]...)
}
