// Package memstore is an in-memory implementation of the reservation and coordinator
// stores. A single mutex guards all state, so every method is one atomic step; this gives
// it the same consistency contract as the Postgres store's conditional updates. It backs
// the service when STORAGE=memory and is used throughout the tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/apperr"
	"github.com/jason-s-yu/rally/internal/models"
)

type friendKey struct{ a, b uuid.UUID }

// Store manages sessions, participants and match rows in memory only.
type Store struct {
	mu            sync.Mutex
	sessions      map[uuid.UUID]*models.Session
	participants  map[uuid.UUID]map[uuid.UUID]models.Participant
	matches       map[uuid.UUID]*models.Match
	friends       map[friendKey]string
	conversations map[uuid.UUID]map[uuid.UUID]bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions:      make(map[uuid.UUID]*models.Session),
		participants:  make(map[uuid.UUID]map[uuid.UUID]models.Participant),
		matches:       make(map[uuid.UUID]*models.Match),
		friends:       make(map[friendKey]string),
		conversations: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

// PutSession stores a copy of sess as-is, bypassing the owner seat bookkeeping of
// CreateSession. Useful for seeding.
func (s *Store) PutSession(sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &sess
}

// PutParticipant stores a participant row without touching spots_filled.
func (s *Store) PutParticipant(p models.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participantsOf(p.SessionID)[p.UserID] = p
}

// PutFriend records a friend edge requested by f.User1ID towards f.User2ID.
func (s *Store) PutFriend(f models.Friend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends[friendKey{f.User1ID, f.User2ID}] = f.Status
}

// ConversationMembers lists the members of a conversation.
func (s *Store) ConversationMembers(conversationID uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for id := range s.conversations[conversationID] {
		out = append(out, id)
	}
	return out
}

func (s *Store) participantsOf(sessionID uuid.UUID) map[uuid.UUID]models.Participant {
	ps, ok := s.participants[sessionID]
	if !ok {
		ps = make(map[uuid.UUID]models.Participant)
		s.participants[sessionID] = ps
	}
	return ps
}

// CreateSession stores a new session and seats its owner.
func (s *Store) CreateSession(_ context.Context, sess *models.Session, owner models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return apperr.Validation("session %s already exists", sess.ID)
	}
	cp := *sess
	cp.SpotsFilled = 1
	s.sessions[sess.ID] = &cp
	s.participantsOf(sess.ID)[owner.UserID] = owner
	sess.SpotsFilled = 1
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) CancelSession(_ context.Context, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Cancelled || sess.Status != models.StatusWaiting {
		return false, nil
	}
	sess.Cancelled = true
	return true, nil
}

func (s *Store) IsParticipant(_ context.Context, sessionID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.participants[sessionID][userID]
	return ok, nil
}

// ListParticipants returns participant IDs ordered by join time.
func (s *Store) ListParticipants(_ context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := make([]models.Participant, 0, len(s.participants[sessionID]))
	for _, p := range s.participants[sessionID] {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].UserID.String() < ps[j].UserID.String()
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
	ids := make([]uuid.UUID, len(ps))
	for i, p := range ps {
		ids[i] = p.UserID
	}
	return ids, nil
}

func (s *Store) AreFriends(_ context.Context, a, b uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.friends[friendKey{a, b}] == models.FriendAccepted ||
		s.friends[friendKey{b, a}] == models.FriendAccepted, nil
}

// ClaimSpot is the in-memory counterpart of the conditional increment.
func (s *Store) ClaimSpot(_ context.Context, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Cancelled || sess.Status != models.StatusWaiting || sess.SpotsFilled >= sess.Capacity {
		return false, nil
	}
	sess.SpotsFilled++
	return true, nil
}

func (s *Store) ReleaseSpot(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return apperr.ErrSessionNotFound
	}
	if sess.SpotsFilled > 0 {
		sess.SpotsFilled--
	}
	return nil
}

// InsertParticipant adds the row only while the session is still waiting.
func (s *Store) InsertParticipant(_ context.Context, p models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[p.SessionID]
	if !ok {
		return apperr.ErrSessionNotFound
	}
	if sess.Status != models.StatusWaiting {
		return apperr.ErrAlreadyStarted
	}
	ps := s.participantsOf(p.SessionID)
	if _, exists := ps[p.UserID]; exists {
		return apperr.ErrAlreadyAdmitted
	}
	ps[p.UserID] = p
	return nil
}

// RemoveParticipant deletes the row and frees its seat; a session that left waiting
// keeps its roster.
func (s *Store) RemoveParticipant(_ context.Context, sessionID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, apperr.ErrSessionNotFound
	}
	if sess.Status != models.StatusWaiting {
		return false, apperr.ErrAlreadyStarted
	}
	ps := s.participants[sessionID]
	if _, ok := ps[userID]; !ok {
		return false, nil
	}
	delete(ps, userID)
	if sess.SpotsFilled > 0 {
		sess.SpotsFilled--
	}
	return true, nil
}

func (s *Store) AddConversationMember(_ context.Context, conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.conversations[conversationID]
	if !ok {
		members = make(map[uuid.UUID]bool)
		s.conversations[conversationID] = members
	}
	members[userID] = true
	return nil
}

// StartSession moves a waiting session to in_progress and stores its matches in one step.
// It fails with apperr.ErrRosterChanged if the participants no longer match the players
// the matches were generated for.
func (s *Store) StartSession(_ context.Context, sessionID uuid.UUID, roundCount int, matches []models.Match) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Cancelled || sess.Status != models.StatusWaiting {
		return false, nil
	}
	current := make([]uuid.UUID, 0, len(s.participants[sessionID]))
	for id := range s.participants[sessionID] {
		current = append(current, id)
	}
	if !models.SameRoster(models.Roster(matches), current) {
		return false, apperr.ErrRosterChanged
	}
	sess.Status = models.StatusInProgress
	rc := roundCount
	sess.RoundCount = &rc
	for _, m := range matches {
		cp := m
		s.matches[m.ID] = &cp
	}
	return true, nil
}

func (s *Store) ListMatches(_ context.Context, sessionID uuid.UUID) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if m.SessionID == sessionID {
			out = append(out, copyMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundNumber != out[j].RoundNumber {
			return out[i].RoundNumber < out[j].RoundNumber
		}
		return out[i].CourtNumber < out[j].CourtNumber
	})
	return out, nil
}

func (s *Store) GetMatch(_ context.Context, matchID uuid.UUID) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, apperr.ErrMatchNotFound
	}
	cp := copyMatch(m)
	return &cp, nil
}

func (s *Store) SetMatchScore(_ context.Context, matchID uuid.UUID, team1Score, team2Score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return apperr.ErrMatchNotFound
	}
	s1, s2 := team1Score, team2Score
	m.Team1Score, m.Team2Score = &s1, &s2
	return nil
}

// CompleteSession marks an in-progress session completed once every match is scored.
func (s *Store) CompleteSession(_ context.Context, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Status != models.StatusInProgress {
		return false, nil
	}
	for _, m := range s.matches {
		if m.SessionID == sessionID && !m.Scored() {
			return false, nil
		}
	}
	sess.Status = models.StatusCompleted
	return true, nil
}

func copyMatch(m *models.Match) models.Match {
	cp := *m
	if m.Team1Score != nil {
		v := *m.Team1Score
		cp.Team1Score = &v
	}
	if m.Team2Score != nil {
		v := *m.Team2Score
		cp.Team2Score = &v
	}
	return cp
}
