// internal/models/session.go
package models

import "github.com/google/uuid"

// Format is the kind of play a session is organized around.
type Format string

const (
	FormatSingles      Format = "singles"
	FormatDoubles      Format = "doubles"
	FormatMixedDoubles Format = "mixed_doubles"
	FormatDrill        Format = "drill"
)

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	switch f {
	case FormatSingles, FormatDoubles, FormatMixedDoubles, FormatDrill:
		return true
	}
	return false
}

// TeamSize is the number of players per side for the round-robin generator.
// Everything except singles is scheduled as doubles.
func (f Format) TeamSize() int {
	if f == FormatSingles {
		return 1
	}
	return 2
}

// Status tracks a session through its lifecycle: waiting -> in_progress -> completed.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Session represents a row in the sessions table.
type Session struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`
	Format  Format    `json:"format"`

	// Capacity is the declared number of seats; SpotsFilled is the number of confirmed
	// participants. 0 <= SpotsFilled <= Capacity at all times.
	Capacity    int `json:"capacity"`
	SpotsFilled int `json:"spots_filled"`

	FriendsOnly bool   `json:"friends_only"`
	Cancelled   bool   `json:"cancelled"`
	Status      Status `json:"status"`
	RoundCount  *int   `json:"round_count,omitempty"`

	// ConversationID links the session's group chat, if one was created.
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

// Full reports whether every seat is taken.
func (s *Session) Full() bool {
	return s.SpotsFilled >= s.Capacity
}
