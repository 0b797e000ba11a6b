package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikeboe/research-advisor/pkg/research"
)

const uniqueViolation = "23505"

// Querier is the part of a pgx pool the store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps sessions in the research_sessions table.
type PostgresStore struct {
	Pool   Querier
	IDs    *IDSource
	Logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool, IDs: DefaultIDs, Logger: slog.Default()}
}

func (s *PostgresStore) Save(ctx context.Context, state research.ResearchState) (string, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", &PersistenceError{Op: "save", Err: fmt.Errorf("failed to marshal state: %w", err)}
	}

	ids := s.IDs
	if ids == nil {
		ids = DefaultIDs
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := ids.Next()
		_, err := s.Pool.Exec(ctx,
			`INSERT INTO research_sessions (id, original_query, state, error) VALUES ($1, $2, $3, $4)`,
			id, state.OriginalQuery, stateJSON, state.Error)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			s.logger().Warn("Session id already taken, drawing a new id", "session_id", id)
			continue
		}
		if err != nil {
			return "", &PersistenceError{Op: "save", ID: id, Err: err}
		}
		s.logger().Info("Session saved", "session_id", id)
		return id, nil
	}
	return "", &PersistenceError{Op: "save", Err: fmt.Errorf("no free session id after %d attempts", maxIDAttempts)}
}

func (s *PostgresStore) Load(ctx context.Context, id string) (Record, error) {
	var (
		record    Record
		stateJSON []byte
	)
	err := s.Pool.QueryRow(ctx,
		`SELECT id, created_at, state FROM research_sessions WHERE id = $1`, id,
	).Scan(&record.ID, &record.Timestamp, &stateJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, &PersistenceError{Op: "load", ID: id, Err: ErrNotFound}
	}
	if err != nil {
		return Record{}, &PersistenceError{Op: "load", ID: id, Err: err}
	}
	if err := json.Unmarshal(stateJSON, &record.ResearchState); err != nil {
		return Record{}, &PersistenceError{Op: "load", ID: id, Err: fmt.Errorf("failed to decode session: %w", err)}
	}
	return record, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, original_query, created_at, error <> '' FROM research_sessions ORDER BY id DESC`)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.ID, &info.OriginalQuery, &info.Timestamp, &info.Failed); err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return infos, nil
}

func (s *PostgresStore) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
