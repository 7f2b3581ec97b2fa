package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/rally/internal/models"
)

// InsertActivities persists a batch of activity records in a single transaction.
func (s *Store) InsertActivities(ctx context.Context, batch []models.Activity) error {
	if len(batch) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, a := range batch {
			payload, err := json.Marshal(a.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			created := time.Now().UTC()
			if a.Timestamp > 0 {
				created = time.UnixMilli(a.Timestamp).UTC()
			}
			b.Queue(`
				INSERT INTO session_activity (
					session_id, actor_id, subject_id, activity_type, payload, created_at
				) VALUES ($1, $2, $3, $4, $5, $6)
			`, a.SessionID, a.ActorID, a.SubjectID, string(a.Type), payload, created)
		}
		return tx.SendBatch(ctx, b).Close()
	})
}

// CountActivities returns how many activity rows exist for a session.
func (s *Store) CountActivities(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM session_activity WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}
