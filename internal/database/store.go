// Package database is the PostgreSQL implementation of the reservation and coordinator
// stores. Capacity and lifecycle guarantees come from conditional UPDATE statements
// checked through RowsAffected and row locks on the session, never from in-process locks.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/rally/internal/apperr"
	"github.com/jason-s-yu/rally/internal/models"
)

const uniqueViolation = "23505"

// Store runs queries against a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// errNotWaiting aborts a transaction whose conditional transition matched no row.
var errNotWaiting = errors.New("session is not waiting")

// CreateSession inserts the session and seats the owner in one transaction.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session, owner models.Participant) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO sessions (
				id, owner_id, format, spots_available, spots_filled,
				friends_only, status, conversation_id
			) VALUES ($1, $2, $3, $4, 1, $5, $6, $7)
		`, sess.ID, sess.OwnerID, sess.Format, sess.Capacity, sess.FriendsOnly, sess.Status, sess.ConversationID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO session_participants (session_id, user_id, joined_at)
			VALUES ($1, $2, $3)
		`, owner.SessionID, owner.UserID, owner.JoinedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	sess.SpotsFilled = 1
	return nil
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	var sess models.Session
	q := `
		SELECT id, owner_id, format, spots_available, spots_filled,
		       friends_only, cancelled, status, round_count, conversation_id
		FROM sessions
		WHERE id = $1
	`
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(
		&sess.ID,
		&sess.OwnerID,
		&sess.Format,
		&sess.Capacity,
		&sess.SpotsFilled,
		&sess.FriendsOnly,
		&sess.Cancelled,
		&sess.Status,
		&sess.RoundCount,
		&sess.ConversationID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &sess, nil
}

func (s *Store) CancelSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE sessions SET cancelled = TRUE
		WHERE id = $1 AND NOT cancelled AND status = 'waiting'
	`, sessionID)
	if err != nil {
		return false, fmt.Errorf("cancel session: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ClaimSpot is the reservation linearization point: the increment only applies while a
// seat is free, so concurrent callers can never push spots_filled past capacity.
func (s *Store) ClaimSpot(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE sessions SET spots_filled = spots_filled + 1
		WHERE id = $1
		  AND spots_filled < spots_available
		  AND NOT cancelled
		  AND status = 'waiting'
	`, sessionID)
	if err != nil {
		return false, fmt.Errorf("claim spot: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) ReleaseSpot(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET spots_filled = spots_filled - 1
		WHERE id = $1 AND spots_filled > 0
	`, sessionID)
	if err != nil {
		return fmt.Errorf("release spot: %w", err)
	}
	return nil
}

// StartSession flips the session to in_progress and stores its rounds in one transaction.
func (s *Store) StartSession(ctx context.Context, sessionID uuid.UUID, roundCount int, matches []models.Match) (bool, error) {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE sessions SET status = 'in_progress', round_count = $2
			WHERE id = $1 AND status = 'waiting' AND NOT cancelled
		`, sessionID, roundCount)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errNotWaiting
		}

		rows, err := tx.Query(ctx, `SELECT user_id FROM session_participants WHERE session_id = $1`, sessionID)
		if err != nil {
			return err
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return err
		}
		if !models.SameRoster(models.Roster(matches), current) {
			return apperr.ErrRosterChanged
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"rounds"},
			[]string{"id", "session_id", "round_number", "court_number", "team1", "team2", "bye_players"},
			pgx.CopyFromSlice(len(matches), func(i int) ([]any, error) {
				m := matches[i]
				return []any{m.ID, sessionID, m.RoundNumber, m.CourtNumber, m.Team1, m.Team2, nonNil(m.ByePlayers)}, nil
			}),
		)
		return err
	})
	if errors.Is(err, errNotWaiting) {
		return false, nil
	}
	if errors.Is(err, apperr.ErrRosterChanged) {
		return false, apperr.ErrRosterChanged
	}
	if err != nil {
		return false, fmt.Errorf("start session: %w", err)
	}
	return true, nil
}

// CompleteSession marks the session completed only when no unscored match remains.
func (s *Store) CompleteSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = 'completed'
		WHERE id = $1
		  AND status = 'in_progress'
		  AND NOT EXISTS (
		      SELECT 1 FROM rounds
		      WHERE session_id = $1 AND (team1_score IS NULL OR team2_score IS NULL)
		  )
	`, sessionID)
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
