package models

import "github.com/google/uuid"

// ActivityType names an audit event recorded against a session.
type ActivityType string

const (
	ActivityParticipantAdmitted ActivityType = "participant_admitted"
	ActivityParticipantLeft     ActivityType = "participant_left"
	ActivityEventStarted        ActivityType = "event_started"
	ActivityScoreSubmitted      ActivityType = "score_submitted"
)

// Activity is a single audit record pushed to the activity queue and persisted by the historian.
type Activity struct {
	SessionID uuid.UUID              `json:"session_id"`
	ActorID   uuid.UUID              `json:"actor_id"`
	SubjectID uuid.UUID              `json:"subject_id"`
	Type      ActivityType           `json:"activity_type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
