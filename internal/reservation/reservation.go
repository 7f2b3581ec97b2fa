// Package reservation admits players into capacity-limited sessions.
//
// Reserve runs a set of advisory pre-checks and then claims a seat with a single
// conditional write in the store (increment spots_filled only while it is still below
// capacity). That write is the only mutator of the counter and the only step that must
// be atomic; the pre-checks merely avoid wasted work. If the participant row cannot be
// written afterwards the seat is released again in the same call.
package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/apperr"
	"github.com/jason-s-yu/rally/internal/metrics"
	"github.com/jason-s-yu/rally/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultCompletionTimeout bounds the steps that run after a seat has been claimed.
// They run detached from the caller's context so an abort cannot skip the rollback.
const DefaultCompletionTimeout = 10 * time.Second

// Store is the persistence contract the reservation protocol relies on.
type Store interface {
	// GetSession returns apperr.ErrSessionNotFound if the session does not exist.
	GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
	AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error)

	// ClaimSpot atomically increments spots_filled if it is below capacity and the
	// session is still open. It reports whether a seat was claimed.
	ClaimSpot(ctx context.Context, sessionID uuid.UUID) (bool, error)
	// ReleaseSpot undoes a ClaimSpot.
	ReleaseSpot(ctx context.Context, sessionID uuid.UUID) error

	// InsertParticipant returns apperr.ErrAlreadyAdmitted if the row already exists.
	InsertParticipant(ctx context.Context, p models.Participant) error
	// RemoveParticipant deletes the row and releases its seat in one atomic step.
	RemoveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)

	AddConversationMember(ctx context.Context, conversationID, userID uuid.UUID) error
}

// ActivityPublisher receives audit records for admissions and departures.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, a models.Activity) error
}

// Service performs capacity-safe admission.
type Service struct {
	store    Store
	activity ActivityPublisher
	metrics  *metrics.Metrics
	logger   *logrus.Logger

	// CompletionTimeout bounds post-claim work; defaults to DefaultCompletionTimeout.
	CompletionTimeout time.Duration
}

// NewService builds a Service. activity and m may be nil.
func NewService(store Store, activity ActivityPublisher, m *metrics.Metrics, logger *logrus.Logger) *Service {
	return &Service{
		store:             store,
		activity:          activity,
		metrics:           m,
		logger:            logger,
		CompletionTimeout: DefaultCompletionTimeout,
	}
}

// Join admits the caller into the session.
func (s *Service) Join(ctx context.Context, sessionID, caller uuid.UUID) error {
	return s.Reserve(ctx, sessionID, caller, caller)
}

// Invite admits target on behalf of caller, who must be the owner or a participant.
func (s *Service) Invite(ctx context.Context, sessionID, caller, target uuid.UUID) error {
	return s.Reserve(ctx, sessionID, caller, target)
}

// Reserve admits target into the session. requester equals target for a self-join.
func (s *Service) Reserve(ctx context.Context, sessionID, requester, target uuid.UUID) (err error) {
	defer func() {
		outcome := "admitted"
		if err != nil {
			outcome = apperr.As(err).Code
		}
		s.metrics.Reservation(outcome)
	}()

	if requester == uuid.Nil || target == uuid.Nil {
		return apperr.Validation("player id is required")
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return classify("load session", err)
	}
	if sess.Cancelled {
		return apperr.ErrCancelled
	}
	if sess.Status != models.StatusWaiting {
		return apperr.ErrAlreadyStarted
	}

	if requester != target && requester != sess.OwnerID {
		ok, err := s.store.IsParticipant(ctx, sessionID, requester)
		if err != nil {
			return classify("check inviter", err)
		}
		if !ok {
			return apperr.ErrNotParticipant
		}
	}

	if sess.Full() {
		return apperr.ErrFull
	}

	already, err := s.store.IsParticipant(ctx, sessionID, target)
	if err != nil {
		return classify("check participant", err)
	}
	if already {
		return apperr.ErrAlreadyAdmitted
	}

	if sess.FriendsOnly && target != sess.OwnerID {
		friends, err := s.store.AreFriends(ctx, target, sess.OwnerID)
		if err != nil {
			return classify("check friendship", err)
		}
		if !friends {
			return apperr.ErrFriendsOnly
		}
	}

	return s.admit(ctx, sess, requester, target)
}

// admit claims a seat and records the participant, releasing the seat again if the
// participant row cannot be written. The claim and everything after it run detached from
// the caller: a claim committed by the store must always get its reply handled.
func (s *Service) admit(ctx context.Context, sess *models.Session, requester, target uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return apperr.Internal("request aborted before claim", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.completionTimeout())
	defer cancel()

	claimed, err := s.store.ClaimSpot(ctx, sess.ID)
	if err != nil {
		return classify("claim seat", err)
	}
	if !claimed {
		return s.whyNotClaimed(ctx, sess.ID)
	}

	log := s.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"user_id":    target,
	})

	p := models.Participant{
		SessionID: sess.ID,
		UserID:    target,
		JoinedAt:  time.Now().UTC(),
	}
	if requester != target {
		inviter := requester
		p.InvitedBy = &inviter
	}

	if err := s.store.InsertParticipant(ctx, p); err != nil {
		if rbErr := s.store.ReleaseSpot(ctx, sess.ID); rbErr != nil {
			s.metrics.Compensation(false)
			log.WithError(rbErr).WithField("insert_error", err).Error("failed to release claimed seat")
			return apperr.ErrCapacityLeak.Wrap(errors.Join(err, rbErr))
		}
		s.metrics.Compensation(true)
		log.WithError(err).Warn("participant insert failed, seat released")

		switch {
		case errors.Is(err, apperr.ErrAlreadyAdmitted):
			return apperr.ErrAlreadyAdmitted
		case errors.Is(err, apperr.ErrAlreadyStarted):
			return apperr.ErrAlreadyStarted
		}
		return apperr.Internal("failed to record participant", err)
	}

	if sess.ConversationID != nil {
		if err := s.store.AddConversationMember(ctx, *sess.ConversationID, target); err != nil {
			log.WithError(err).Warn("failed to add participant to session conversation")
		}
	}

	s.publish(ctx, models.Activity{
		SessionID: sess.ID,
		ActorID:   requester,
		SubjectID: target,
		Type:      models.ActivityParticipantAdmitted,
	})

	if p.InvitedBy != nil {
		log = log.WithField("invited_by", *p.InvitedBy)
	}
	log.Info("participant admitted")
	return nil
}

// whyNotClaimed reloads the session after a lost claim to report the specific reason.
func (s *Service) whyNotClaimed(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return classify("reload session", err)
	}
	switch {
	case sess.Cancelled:
		return apperr.ErrCancelled
	case sess.Status != models.StatusWaiting:
		return apperr.ErrAlreadyStarted
	default:
		return apperr.ErrFull
	}
}

// Leave removes player from a session that has not started yet and frees the seat.
func (s *Service) Leave(ctx context.Context, sessionID, player uuid.UUID) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return classify("load session", err)
	}
	if sess.Status != models.StatusWaiting {
		return apperr.ErrAlreadyStarted
	}
	if player == sess.OwnerID {
		return apperr.ErrOwnerCannotLeave
	}

	removed, err := s.store.RemoveParticipant(ctx, sessionID, player)
	if err != nil {
		return classify("remove participant", err)
	}
	if !removed {
		return apperr.ErrNotParticipating
	}

	s.publish(ctx, models.Activity{
		SessionID: sessionID,
		ActorID:   player,
		SubjectID: player,
		Type:      models.ActivityParticipantLeft,
	})
	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    player,
	}).Info("participant left")
	return nil
}

func (s *Service) publish(ctx context.Context, a models.Activity) {
	if s.activity == nil {
		return
	}
	a.Timestamp = time.Now().UnixMilli()
	if err := s.activity.PublishActivity(ctx, a); err != nil {
		s.logger.WithError(err).WithField("activity", a.Type).Warn("failed to publish session activity")
	}
}

func (s *Service) completionTimeout() time.Duration {
	if s.CompletionTimeout <= 0 {
		return DefaultCompletionTimeout
	}
	return s.CompletionTimeout
}

// classify passes classified errors through and wraps everything else as internal.
func classify(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(op, err)
}
