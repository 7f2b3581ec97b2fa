package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a confirmed seat in a session. One row exists per admitted player;
// the session's SpotsFilled counter always equals the number of these rows.
type Participant struct {
	SessionID uuid.UUID  `json:"session_id"`
	UserID    uuid.UUID  `json:"user_id"`
	InvitedBy *uuid.UUID `json:"invited_by,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
}
