// Package live fans refreshed standings out to websocket subscribers of a session.
package live

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/models"
	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 4

// Subscriber receives every leaderboard published for its session on OutChan. A
// subscriber that falls behind loses the oldest pending board, never the newest.
type Subscriber struct {
	SessionID uuid.UUID
	OutChan   chan []models.LeaderboardEntry
}

// Hub tracks subscribers per session.
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*Subscriber]struct{}
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber for sessionID.
func (h *Hub) Subscribe(sessionID uuid.UUID) *Subscriber {
	s := &Subscriber{
		SessionID: sessionID,
		OutChan:   make(chan []models.LeaderboardEntry, subscriberBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[s] = struct{}{}
	return s
}

// Unsubscribe removes s and closes its channel. Calling it twice is harmless.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.SessionID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.SessionID)
	}
	close(s.OutChan)
}

// PublishStandings delivers board to every subscriber of sessionID without blocking.
func (h *Hub) PublishStandings(sessionID uuid.UUID, board []models.LeaderboardEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[sessionID] {
		select {
		case s.OutChan <- board:
			continue
		default:
		}
		// full: drop the stalest board to make room
		select {
		case <-s.OutChan:
		default:
		}
		select {
		case s.OutChan <- board:
		default:
			h.logger.WithField("session_id", sessionID).Warn("dropped standings update for slow subscriber")
		}
	}
}

// Subscribers returns how many subscribers sessionID has.
func (h *Hub) Subscribers(sessionID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
