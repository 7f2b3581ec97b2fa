// internal/models/match.go
package models

import (
	"sort"

	"github.com/google/uuid"
)

// Match is one court assignment within a round, persisted as a row in the rounds table.
type Match struct {
	ID          uuid.UUID   `json:"id"`
	SessionID   uuid.UUID   `json:"session_id"`
	RoundNumber int         `json:"round_number"`
	CourtNumber int         `json:"court_number"`
	Team1       []uuid.UUID `json:"team1"`
	Team2       []uuid.UUID `json:"team2"`
	ByePlayers  []uuid.UUID `json:"bye_players"`
	Team1Score  *int        `json:"team1_score"`
	Team2Score  *int        `json:"team2_score"`
}

// Scored reports whether both team scores have been submitted.
func (m *Match) Scored() bool {
	return m.Team1Score != nil && m.Team2Score != nil
}

// HasPlayer reports whether userID plays on either team.
func (m *Match) HasPlayer(userID uuid.UUID) bool {
	for _, id := range m.Team1 {
		if id == userID {
			return true
		}
	}
	for _, id := range m.Team2 {
		if id == userID {
			return true
		}
	}
	return false
}

// Round groups the matches played at the same time plus the players sitting out.
type Round struct {
	Number  int         `json:"round_number"`
	Matches []Match     `json:"matches"`
	Byes    []uuid.UUID `json:"byes"`
}

// FlattenRounds turns rounds into persisted match rows. Each row of a round carries the
// round's bye list so the round can be rebuilt from any single row.
func FlattenRounds(sessionID uuid.UUID, rounds []Round) []Match {
	var out []Match
	for _, r := range rounds {
		for _, m := range r.Matches {
			m.SessionID = sessionID
			m.RoundNumber = r.Number
			m.ByePlayers = r.Byes
			out = append(out, m)
		}
	}
	return out
}

// GroupRounds rebuilds the round view from stored match rows, ordered by round then court.
func GroupRounds(matches []Match) []Round {
	byNumber := make(map[int]*Round)
	for _, m := range matches {
		r, ok := byNumber[m.RoundNumber]
		if !ok {
			r = &Round{Number: m.RoundNumber, Byes: m.ByePlayers}
			byNumber[m.RoundNumber] = r
		}
		r.Matches = append(r.Matches, m)
	}

	rounds := make([]Round, 0, len(byNumber))
	for _, r := range byNumber {
		sort.Slice(r.Matches, func(i, j int) bool {
			return r.Matches[i].CourtNumber < r.Matches[j].CourtNumber
		})
		rounds = append(rounds, *r)
	}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].Number < rounds[j].Number
	})
	return rounds
}

// Roster returns everyone scheduled in the earliest round, playing or sitting out. Every
// round covers the full roster, so this is the set of players the matches were built for.
func Roster(matches []Match) []uuid.UUID {
	first := 0
	for _, m := range matches {
		if first == 0 || m.RoundNumber < first {
			first = m.RoundNumber
		}
	}
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(ids []uuid.UUID) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	for _, m := range matches {
		if m.RoundNumber != first {
			continue
		}
		add(m.Team1)
		add(m.Team2)
		add(m.ByePlayers)
	}
	return out
}

// SameRoster reports whether a and b hold the same players, ignoring order.
func SameRoster(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
