package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/rally/internal/apperr"
	"github.com/jason-s-yu/rally/internal/models"
)

func (s *Store) IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM session_participants WHERE session_id = $1 AND user_id = $2
		)
	`, sessionID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return ok, nil
}

// ListParticipants returns the roster in join order.
func (s *Store) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at, user_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan participants: %w", err)
	}
	return ids, nil
}

// lockWaiting takes a row lock on the session and fails unless it is still waiting.
// StartSession's status update waits on the same lock, so a roster change either
// commits before the start transaction reads the roster or sees the new status.
func lockWaiting(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, mode string) error {
	var status models.Status
	err := tx.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1 FOR `+mode, sessionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if status != models.StatusWaiting {
		return apperr.ErrAlreadyStarted
	}
	return nil
}

// InsertParticipant writes the participant row while the session is waiting. A
// duplicate maps to ErrAlreadyAdmitted and a started session to ErrAlreadyStarted.
func (s *Store) InsertParticipant(ctx context.Context, p models.Participant) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := lockWaiting(ctx, tx, p.SessionID, "SHARE"); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO session_participants (session_id, user_id, invited_by, joined_at)
			VALUES ($1, $2, $3, $4)
		`, p.SessionID, p.UserID, p.InvitedBy, p.JoinedAt)
		return err
	})
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return apperr.ErrAlreadyAdmitted
	case errors.As(err, &ae):
		return ae
	default:
		return fmt.Errorf("insert participant: %w", err)
	}
}

// RemoveParticipant deletes the row and frees its seat in one transaction, only while
// the session is waiting.
func (s *Store) RemoveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	removed := false
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := lockWaiting(ctx, tx, sessionID, "UPDATE"); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `
			DELETE FROM session_participants WHERE session_id = $1 AND user_id = $2
		`, sessionID, userID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
		removed = true
		_, err = tx.Exec(ctx, `
			UPDATE sessions SET spots_filled = spots_filled - 1
			WHERE id = $1 AND spots_filled > 0
		`, sessionID)
		return err
	})
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return false, ae
	}
	if err != nil {
		return false, fmt.Errorf("remove participant: %w", err)
	}
	return removed, nil
}

// AreFriends reports whether an accepted friendship exists in either direction.
func (s *Store) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friends
			WHERE status = 'accepted'
			  AND ((user1_id = $1 AND user2_id = $2) OR (user1_id = $2 AND user2_id = $1))
		)
	`, a, b).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return ok, nil
}

func (s *Store) AddConversationMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("add conversation member: %w", err)
	}
	return nil
}
