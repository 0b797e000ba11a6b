package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikeboe/research-advisor/pkg/research"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("job not found")

// Job is a research run executed in the background.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Query     string          `json:"query"`
	Status    string          `json:"status"`
	Stage     string          `json:"stage"`
	State     json.RawMessage `json:"state,omitempty"`
	SessionID *string         `json:"session_id,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobUpdate changes a job. Empty fields and a nil State are left as they are.
type JobUpdate struct {
	Status    string
	Stage     string
	State     *research.ResearchState
	SessionID string
	Error     string
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// JobStore keeps jobs and their logs.
type JobStore interface {
	CreateJob(ctx context.Context, query string) (*Job, error)
	UpdateJob(ctx context.Context, id uuid.UUID, u JobUpdate) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
}

// PostgresJobStore keeps jobs in the research_jobs and research_logs tables.
type PostgresJobStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{Pool: pool}
}

const jobColumns = `id, query, status, stage, state, session_id, error, created_at, updated_at`

func scanJob(row pgx.Row, job *Job) error {
	return row.Scan(&job.ID, &job.Query, &job.Status, &job.Stage, &job.State,
		&job.SessionID, &job.Error, &job.CreatedAt, &job.UpdatedAt)
}

func (s *PostgresJobStore) CreateJob(ctx context.Context, query string) (*Job, error) {
	sql := `
		INSERT INTO research_jobs (id, query, status, stage)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + jobColumns

	job := &Job{}
	if err := scanJob(s.Pool.QueryRow(ctx, sql, uuid.New(), query, StatusPending, research.StagePending.String()), job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) UpdateJob(ctx context.Context, id uuid.UUID, u JobUpdate) error {
	var state []byte
	if u.State != nil {
		var err error
		if state, err = json.Marshal(u.State); err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}
	}

	sql := `
		UPDATE research_jobs SET
			status = COALESCE(NULLIF($2, ''), status),
			stage = COALESCE(NULLIF($3, ''), stage),
			state = COALESCE($4::jsonb, state),
			session_id = COALESCE(NULLIF($5, ''), session_id),
			error = COALESCE(NULLIF($6, ''), error),
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := s.Pool.Exec(ctx, sql, id, u.Status, u.Stage, state, u.SessionID, u.Error)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresJobStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	sql := `SELECT ` + jobColumns + ` FROM research_jobs WHERE id = $1`

	job := &Job{}
	if err := scanJob(s.Pool.QueryRow(ctx, sql, id), job); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) ListJobs(ctx context.Context) ([]Job, error) {
	sql := `
		SELECT ` + jobColumns + `
		FROM research_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.Pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := scanJob(rows, &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresJobStore) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	sql := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.Pool.Query(ctx, sql, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
