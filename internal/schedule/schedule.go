// Package schedule builds round-robin rotations for a session roster.
//
// Generation is split in two: a Generator shuffles the roster once using its own
// random source, then the pure functions Singles and Doubles turn that fixed order
// into rounds. Given the same order and round count they always produce the same
// schedule, so tests either call them directly or inject a seeded source.
package schedule

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/apperr"
	"github.com/jason-s-yu/rally/internal/models"
)

// Generator shuffles rosters before scheduling them. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Generator drawing its shuffle from src.
func New(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src)}
}

// NewRandom returns a Generator seeded from the clock.
func NewRandom() *Generator {
	return New(rand.NewSource(time.Now().UnixNano()))
}

// Validate checks that a roster of playerCount can be scheduled for rounds rounds
// in the given format.
func Validate(playerCount, rounds int, format models.Format) error {
	if !format.Valid() {
		return apperr.Validation("unknown format %q", format)
	}
	if rounds < 1 {
		return apperr.Validation("round count must be at least 1, got %d", rounds)
	}
	if playerCount < 2 {
		return apperr.ErrNotEnoughPlayers.Wrap(apperr.Validation("need at least 2 players, have %d", playerCount))
	}
	if format.TeamSize() == 2 && playerCount < 4 {
		return apperr.ErrNotEnoughPlayers.Wrap(apperr.Validation("%s needs at least 4 players, have %d", format, playerCount))
	}
	return nil
}

// Generate shuffles players once and schedules rounds rounds of play.
// The returned matches have no IDs; the caller assigns them when persisting.
func (g *Generator) Generate(players []uuid.UUID, rounds int, format models.Format) ([]models.Round, error) {
	if err := Validate(len(players), rounds, format); err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(players))
	for _, p := range players {
		if seen[p] {
			return nil, apperr.Validation("player %s appears twice in the roster", p)
		}
		seen[p] = true
	}

	order := make([]uuid.UUID, len(players))
	copy(order, players)

	g.mu.Lock()
	g.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	g.mu.Unlock()

	if format.TeamSize() == 1 {
		return Singles(order, rounds), nil
	}
	return Doubles(order, rounds), nil
}
