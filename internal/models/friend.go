package models

import "github.com/google/uuid"

const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
)

// Friend is an edge in the friend graph. The graph itself is owned by the profile
// service; this service only reads accepted edges for friends-only sessions.
type Friend struct {
	User1ID uuid.UUID `json:"user1_id"`
	User2ID uuid.UUID `json:"user2_id"`
	Status  string    `json:"status"` // 'pending', 'accepted'
}
