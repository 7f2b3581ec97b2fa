// internal/handlers/session.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/apperr"
	"github.com/jason-s-yu/rally/internal/models"
)

type createSessionRequest struct {
	Capacity       int           `json:"capacity"`
	Format         models.Format `json:"format"`
	FriendsOnly    bool          `json:"friends_only"`
	ConversationID *uuid.UUID    `json:"conversation_id"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type roundsResponse struct {
	Rounds []models.Round `json:"rounds"`
}

type leaderboardResponse struct {
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

// createSession opens a new session owned by the caller.
//
// Request payload: { "capacity": 8, "format": "doubles", "friends_only": false }
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.Coordinator.CreateSession(r.Context(), callerID(r), req.Capacity, req.Format, req.FriendsOnly, req.ConversationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Reservations.Join(r.Context(), sessionID, callerID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// invitePlayer admits another user on the caller's behalf.
//
// Request payload: { "user_id": "some-uuid-string" }
func (s *Server) invitePlayer(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID == uuid.Nil {
		s.writeError(w, r, apperr.Validation("user_id is required"))
		return
	}
	if err := s.Reservations.Invite(r.Context(), sessionID, callerID(r), req.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) leaveSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Reservations.Leave(r.Context(), sessionID, callerID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Coordinator.CancelSession(r.Context(), callerID(r), sessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// startEvent generates and stores the round-robin.
//
// Request payload: { "round_count": 5 }
func (s *Server) startEvent(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		RoundCount int `json:"round_count"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rounds, err := s.Coordinator.StartEvent(r.Context(), callerID(r), sessionID, req.RoundCount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roundsResponse{Rounds: rounds})
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rounds, err := s.Coordinator.Schedule(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roundsResponse{Rounds: rounds})
}

func (s *Server) getStandings(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	board, err := s.Coordinator.Standings(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if board == nil {
		board = []models.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Leaderboard: board})
}

// submitScore records a match result.
//
// Request payload: { "team1_score": 11, "team2_score": 7 }
func (s *Server) submitScore(w http.ResponseWriter, r *http.Request) {
	matchID, err := uuidParam(r, "matchID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Team1Score *int `json:"team1_score"`
		Team2Score *int `json:"team2_score"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Team1Score == nil || req.Team2Score == nil {
		s.writeError(w, r, errMissingScores)
		return
	}
	if err := s.Coordinator.SubmitScore(r.Context(), callerID(r), matchID, *req.Team1Score, *req.Team2Score); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
