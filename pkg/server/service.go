package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/research-advisor/pkg/research"
)

// ErrEmptyQuery is returned when a research request has no query.
var ErrEmptyQuery = errors.New("query must not be empty")

// EngineFactory builds an engine that logs to log. The job worker uses a
// fresh engine per job so each job gets its own logger and state hook.
type EngineFactory func(log *slog.Logger) *research.ResearchEngine

// Service runs research jobs in the background.
type Service struct {
	Jobs      JobStore
	NewEngine EngineFactory

	// LogHandler returns the handler for a job's logger. When nil, job logs
	// go to the default logger.
	LogHandler func(jobID uuid.UUID) slog.Handler

	wg sync.WaitGroup
}

func NewService(jobs JobStore, newEngine EngineFactory) *Service {
	return &Service{
		Jobs:      jobs,
		NewEngine: newEngine,
	}
}

type CreateJobRequest struct {
	Query string `json:"query"`
}

// CreateJob stores a pending job and starts its worker.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	job, err := s.Jobs.CreateJob(ctx, query)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(job.ID, query)
	}()

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.Jobs.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	return s.Jobs.ListJobs(ctx)
}

func (s *Service) GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	return s.Jobs.GetJobLogs(ctx, id)
}

// Wait blocks until all started workers have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) jobLogger(jobID uuid.UUID) *slog.Logger {
	if s.LogHandler == nil {
		return slog.Default().With("job_id", jobID)
	}
	return slog.New(s.LogHandler(jobID))
}

func (s *Service) runWorker(jobID uuid.UUID, query string) {
	ctx := context.Background()
	log := s.jobLogger(jobID)

	if err := s.Jobs.UpdateJob(ctx, jobID, JobUpdate{Status: StatusRunning}); err != nil {
		log.Error("Failed to mark job running", "error", err)
	}

	engine := s.NewEngine(log)
	engine.OnStateUpdate = func(state research.ResearchState, stage research.Stage) {
		if err := s.Jobs.UpdateJob(ctx, jobID, JobUpdate{Stage: stage.String(), State: &state}); err != nil {
			log.Error("Failed to save state to DB", "error", err)
		}
	}

	state, sessionID, err := engine.RunAndSave(ctx, query)

	update := JobUpdate{
		Status:    StatusCompleted,
		Stage:     research.StageDone.String(),
		State:     &state,
		SessionID: sessionID,
		Error:     state.Error,
	}
	if hasFatal(state) {
		update.Status = StatusFailed
	}
	if err != nil {
		update.Status = StatusFailed
		update.Error = joinErrors(state.Error, fmt.Sprintf("failed to save session: %v", err))
	}

	if err := s.Jobs.UpdateJob(ctx, jobID, update); err != nil {
		log.Error("Failed to save final job state", "error", err)
		return
	}
	log.Info("Job finished", "status", update.Status, "session_id", sessionID)
}

func hasFatal(state research.ResearchState) bool {
	for _, f := range state.Failures {
		if f.Fatal {
			return true
		}
	}
	return false
}

func joinErrors(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}
