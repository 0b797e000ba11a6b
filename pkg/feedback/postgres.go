package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps feedback in the feedback table.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (s *PostgresStore) Record(ctx context.Context, fb Feedback) (Feedback, error) {
	fb, err := prepare(fb, time.Now())
	if err != nil {
		return Feedback{}, err
	}

	var sessionID *string
	if fb.SessionID != "" {
		sessionID = &fb.SessionID
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO feedback (id, original_query, feedback_text, rating, session_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		fb.ID, fb.OriginalQuery, fb.FeedbackText, fb.Rating, sessionID, fb.Timestamp)
	if err != nil {
		return Feedback{}, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return fb, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Feedback, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id::text, original_query, feedback_text, rating, COALESCE(session_id, ''), created_at FROM feedback ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	entries := []Feedback{}
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.ID, &fb.OriginalQuery, &fb.FeedbackText, &fb.Rating, &fb.SessionID, &fb.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		entries = append(entries, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}
	return entries, nil
}
