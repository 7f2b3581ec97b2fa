// Package coordinator drives a session from creation through a generated round-robin to
// a completed leaderboard. It owns the one-way status transitions
// waiting -> in_progress -> completed; admission while waiting belongs to the
// reservation package.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/apperr"
	"github.com/jason-s-yu/rally/internal/metrics"
	"github.com/jason-s-yu/rally/internal/models"
	"github.com/jason-s-yu/rally/internal/schedule"
	"github.com/jason-s-yu/rally/internal/standings"
	"github.com/sirupsen/logrus"
)

// MaxRounds caps the round count accepted by StartEvent.
const MaxRounds = 100

// startAttempts bounds how often StartEvent regenerates after the roster moved under it.
const startAttempts = 3

// Store is the persistence contract for session lifecycle and match rows.
type Store interface {
	// CreateSession inserts the session and seats its owner; sess.SpotsFilled is set to 1.
	CreateSession(ctx context.Context, sess *models.Session, owner models.Participant) error
	GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	// CancelSession flags a waiting session as cancelled; false if it was not waiting.
	CancelSession(ctx context.Context, sessionID uuid.UUID) (bool, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error)

	// StartSession moves the session from waiting to in_progress and stores its match
	// rows as one atomic step. It reports false if the session was no longer waiting,
	// in which case nothing is written. If the session's participants differ from the
	// players in the matches it returns apperr.ErrRosterChanged and writes nothing.
	StartSession(ctx context.Context, sessionID uuid.UUID, roundCount int, matches []models.Match) (bool, error)
	ListMatches(ctx context.Context, sessionID uuid.UUID) ([]models.Match, error)
	GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error)
	SetMatchScore(ctx context.Context, matchID uuid.UUID, team1Score, team2Score int) error
	// CompleteSession moves an in_progress session whose matches are all scored to
	// completed. It reports whether the transition happened.
	CompleteSession(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// ActivityPublisher receives audit records for lifecycle events.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, a models.Activity) error
}

// StandingsNotifier pushes a refreshed leaderboard to live subscribers.
type StandingsNotifier interface {
	PublishStandings(sessionID uuid.UUID, board []models.LeaderboardEntry)
}

// Service coordinates schedule generation, scoring and standings.
type Service struct {
	store    Store
	gen      *schedule.Generator
	activity ActivityPublisher
	live     StandingsNotifier
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewService builds a Service. activity, live and m may be nil.
func NewService(store Store, gen *schedule.Generator, activity ActivityPublisher, live StandingsNotifier, m *metrics.Metrics, logger *logrus.Logger) *Service {
	return &Service{
		store:    store,
		gen:      gen,
		activity: activity,
		live:     live,
		metrics:  m,
		logger:   logger,
	}
}

// CreateSession opens a new waiting session owned by owner, who takes the first seat.
func (s *Service) CreateSession(ctx context.Context, owner uuid.UUID, capacity int, format models.Format, friendsOnly bool, conversationID *uuid.UUID) (*models.Session, error) {
	if !format.Valid() {
		return nil, apperr.Validation("unknown format %q", format)
	}
	minPlayers := 2 * format.TeamSize()
	if capacity < minPlayers {
		return nil, apperr.Validation("%s sessions need a capacity of at least %d", format, minPlayers)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Internal("failed to generate session id", err)
	}
	sess := &models.Session{
		ID:             id,
		OwnerID:        owner,
		Format:         format,
		Capacity:       capacity,
		FriendsOnly:    friendsOnly,
		Status:         models.StatusWaiting,
		ConversationID: conversationID,
	}
	ownerSeat := models.Participant{SessionID: id, UserID: owner, JoinedAt: time.Now().UTC()}
	if err := s.store.CreateSession(ctx, sess, ownerSeat); err != nil {
		return nil, classify("create session", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": id,
		"owner_id":   owner,
		"format":     format,
		"capacity":   capacity,
	}).Info("session created")
	return sess, nil
}

// CancelSession cancels a session that has not started. Only the owner may cancel.
func (s *Service) CancelSession(ctx context.Context, caller, sessionID uuid.UUID) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return classify("load session", err)
	}
	if sess.OwnerID != caller {
		return apperr.ErrNotOwner
	}
	ok, err := s.store.CancelSession(ctx, sessionID)
	if err != nil {
		return classify("cancel session", err)
	}
	if !ok {
		return s.whyNotWaiting(ctx, sessionID)
	}
	s.logger.WithField("session_id", sessionID).Info("session cancelled")
	return nil
}

// StartEvent generates the round-robin for the current roster and moves the session to
// in_progress. Exactly one of several concurrent calls succeeds.
func (s *Service) StartEvent(ctx context.Context, caller, sessionID uuid.UUID, roundCount int) ([]models.Round, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, classify("load session", err)
	}
	if sess.OwnerID != caller {
		return nil, apperr.ErrNotOwner
	}
	if sess.Cancelled {
		return nil, apperr.ErrCancelled
	}
	if sess.Status != models.StatusWaiting {
		return nil, apperr.ErrAlreadyStarted
	}
	if roundCount < 1 || roundCount > MaxRounds {
		return nil, apperr.Validation("round count must be between 1 and %d, got %d", MaxRounds, roundCount)
	}

	var (
		rounds  []models.Round
		players []uuid.UUID
	)
	for attempt := 1; ; attempt++ {
		rounds, players, err = s.startOnce(ctx, sess, roundCount)
		if !errors.Is(err, apperr.ErrRosterChanged) || attempt == startAttempts {
			break
		}
		s.logger.WithField("session_id", sessionID).Debug("roster changed during start, regenerating")
	}
	if err != nil {
		return nil, err
	}

	s.metrics.EventStarted(string(sess.Format))
	s.publish(ctx, models.Activity{
		SessionID: sessionID,
		ActorID:   caller,
		SubjectID: caller,
		Type:      models.ActivityEventStarted,
		Payload: map[string]interface{}{
			"round_count":  roundCount,
			"player_count": len(players),
		},
	})
	s.logger.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"format":       sess.Format,
		"round_count":  roundCount,
		"player_count": len(players),
	}).Info("event started")
	return rounds, nil
}

// startOnce generates rounds for the roster as it stands and hands them to the store.
// The store rejects them with apperr.ErrRosterChanged if a join or leave landed in between.
func (s *Service) startOnce(ctx context.Context, sess *models.Session, roundCount int) ([]models.Round, []uuid.UUID, error) {
	players, err := s.store.ListParticipants(ctx, sess.ID)
	if err != nil {
		return nil, nil, classify("list participants", err)
	}
	rounds, err := s.gen.Generate(players, roundCount, sess.Format)
	if err != nil {
		return nil, nil, err
	}

	for i := range rounds {
		for j := range rounds[i].Matches {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, nil, apperr.Internal("failed to generate match id", err)
			}
			m := &rounds[i].Matches[j]
			m.ID = id
			m.SessionID = sess.ID
			m.RoundNumber = rounds[i].Number
			m.ByePlayers = rounds[i].Byes
		}
	}

	started, err := s.store.StartSession(ctx, sess.ID, roundCount, models.FlattenRounds(sess.ID, rounds))
	if err != nil {
		return nil, nil, classify("start session", err)
	}
	if !started {
		return nil, nil, s.whyNotWaiting(ctx, sess.ID)
	}
	return rounds, players, nil
}

// SubmitScore records the final score of a match. The owner or any player in the match
// may submit, and may correct an earlier submission. Once every match of the session is
// scored the session is marked completed.
func (s *Service) SubmitScore(ctx context.Context, caller, matchID uuid.UUID, team1Score, team2Score int) error {
	if team1Score < 0 || team2Score < 0 {
		return apperr.Validation("scores must not be negative")
	}
	if team1Score == team2Score {
		return apperr.Validation("tied scores are not allowed")
	}

	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return classify("load match", err)
	}
	sess, err := s.store.GetSession(ctx, match.SessionID)
	if err != nil {
		return classify("load session", err)
	}
	if sess.Status == models.StatusWaiting {
		return apperr.ErrNotStarted
	}
	if caller != sess.OwnerID && !match.HasPlayer(caller) {
		return apperr.ErrNotInMatch
	}

	if err := s.store.SetMatchScore(ctx, matchID, team1Score, team2Score); err != nil {
		return classify("save score", err)
	}
	s.metrics.ScoreSubmitted()

	log := s.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"match_id":   matchID,
		"user_id":    caller,
	})

	completed, err := s.store.CompleteSession(ctx, sess.ID)
	if err != nil {
		log.WithError(err).Warn("failed to check session completion")
	} else if completed {
		log.Info("all matches scored, session completed")
	}

	s.publish(ctx, models.Activity{
		SessionID: sess.ID,
		ActorID:   caller,
		SubjectID: caller,
		Type:      models.ActivityScoreSubmitted,
		Payload: map[string]interface{}{
			"match_id":    matchID,
			"team1_score": team1Score,
			"team2_score": team2Score,
		},
	})
	log.Info("score submitted")

	if s.live != nil {
		board, err := s.Standings(ctx, sess.ID)
		if err != nil {
			log.WithError(err).Warn("failed to refresh live standings")
			return nil
		}
		s.live.PublishStandings(sess.ID, board)
	}
	return nil
}

// Standings recomputes the leaderboard from the stored match rows.
func (s *Service) Standings(ctx context.Context, sessionID uuid.UUID) ([]models.LeaderboardEntry, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, classify("load session", err)
	}
	matches, err := s.store.ListMatches(ctx, sessionID)
	if err != nil {
		return nil, classify("list matches", err)
	}
	s.metrics.StandingsComputed()
	return standings.Aggregate(matches), nil
}

// Schedule returns the stored rounds of a started session.
func (s *Service) Schedule(ctx context.Context, sessionID uuid.UUID) ([]models.Round, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, classify("load session", err)
	}
	if sess.Status == models.StatusWaiting {
		return nil, apperr.ErrNotStarted
	}
	matches, err := s.store.ListMatches(ctx, sessionID)
	if err != nil {
		return nil, classify("list matches", err)
	}
	return models.GroupRounds(matches), nil
}

// whyNotWaiting reloads the session after a lost conditional transition.
func (s *Service) whyNotWaiting(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return classify("load session", err)
	}
	if sess.Cancelled {
		return apperr.ErrCancelled
	}
	return apperr.ErrAlreadyStarted
}

func (s *Service) publish(ctx context.Context, a models.Activity) {
	if s.activity == nil {
		return
	}
	a.Timestamp = time.Now().UTC().UnixMilli()
	if err := s.activity.PublishActivity(ctx, a); err != nil {
		s.logger.WithError(err).WithField("activity", a.Type).Warn("failed to publish session activity")
	}
}

func classify(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(op, err)
}
