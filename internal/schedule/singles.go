package schedule

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/models"
)

// slot is a seat on the circle. The phantom seat added for odd rosters has bye set;
// whoever is paired with it sits out that round.
type slot struct {
	player uuid.UUID
	bye    bool
}

// Singles schedules a 1v1 round-robin with the circle method. Over n-1 rounds (n being
// the roster size rounded up to even) every pair meets exactly once; more rounds repeat
// the cycle.
func Singles(order []uuid.UUID, rounds int) []models.Round {
	if len(order) == 0 {
		return nil
	}
	slots := make([]slot, 0, len(order)+1)
	for _, p := range order {
		slots = append(slots, slot{player: p})
	}
	if len(slots)%2 == 1 {
		slots = append(slots, slot{bye: true})
	}
	n := len(slots)

	out := make([]models.Round, 0, rounds)
	for r := 0; r < rounds; r++ {
		circle := rotateCircle(slots, r%(n-1))
		round := models.Round{Number: r + 1, Byes: []uuid.UUID{}}

		court := 0
		for i := 0; i < n/2; i++ {
			a, b := circle[i], circle[n-1-i]
			switch {
			case a.bye:
				round.Byes = append(round.Byes, b.player)
			case b.bye:
				round.Byes = append(round.Byes, a.player)
			default:
				court++
				round.Matches = append(round.Matches, models.Match{
					RoundNumber: r + 1,
					CourtNumber: court,
					Team1:       []uuid.UUID{a.player},
					Team2:       []uuid.UUID{b.player},
				})
			}
		}
		out = append(out, round)
	}
	return out
}

// rotateCircle keeps slots[0] fixed and rotates the rest k positions.
func rotateCircle(slots []slot, k int) []slot {
	n := len(slots)
	out := make([]slot, n)
	out[0] = slots[0]
	m := n - 1
	for i := 0; i < m; i++ {
		out[1+(i+k)%m] = slots[1+i]
	}
	return out
}
