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

const matchColumns = `
	id, session_id, round_number, court_number,
	team1, team2, bye_players, team1_score, team2_score
`

func scanMatch(row pgx.Row) (models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID,
		&m.SessionID,
		&m.RoundNumber,
		&m.CourtNumber,
		&m.Team1,
		&m.Team2,
		&m.ByePlayers,
		&m.Team1Score,
		&m.Team2Score,
	)
	return m, err
}

// ListMatches returns every match row of a session ordered by round then court.
func (s *Store) ListMatches(ctx context.Context, sessionID uuid.UUID) ([]models.Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+matchColumns+`
		FROM rounds
		WHERE session_id = $1
		ORDER BY round_number, court_number
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Match, error) {
		return scanMatch(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan matches: %w", err)
	}
	return matches, nil
}

func (s *Store) GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM rounds WHERE id = $1`, matchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select match: %w", err)
	}
	return &m, nil
}

func (s *Store) SetMatchScore(ctx context.Context, matchID uuid.UUID, team1Score, team2Score int) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE rounds SET team1_score = $2, team2_score = $3 WHERE id = $1
	`, matchID, team1Score, team2Score)
	if err != nil {
		return fmt.Errorf("update match score: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrMatchNotFound
	}
	return nil
}
