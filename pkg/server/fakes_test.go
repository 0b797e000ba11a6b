package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mikeboe/research-advisor/pkg/archive"
	"github.com/mikeboe/research-advisor/pkg/feedback"
	"github.com/mikeboe/research-advisor/pkg/research"
	"github.com/mikeboe/research-advisor/pkg/session"
)

func answeredState(query string) research.ResearchState {
	return research.ResearchState{
		OriginalQuery: query,
		SubQueries:    []string{"caffeine half-life"},
		RetrievedInfo: map[string][]research.RetrievalResult{
			"caffeine half-life": {{Title: "Half-life", URL: "https://example.org/a", Snippet: "About five hours."}},
		},
		Plan:    &research.ResearchPlan{Steps: []string{"Compare studies"}, SynthesisQuestions: []string{}},
		Summary: &research.SummarizedOutput{SummaryText: "Caffeine lingers.", KeyPoints: []string{"Five hour half-life"}},
	}
}

type fakeResearcher struct {
	mu      sync.Mutex
	id      string
	err     error
	queries []string
}

func (f *fakeResearcher) RunAndSave(_ context.Context, query string) (research.ResearchState, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return answeredState(query), f.id, f.err
}

type fakeSessions struct {
	records map[string]session.Record
	infos   []session.Info
	err     error
}

func (f *fakeSessions) Load(_ context.Context, id string) (session.Record, error) {
	if f.err != nil {
		return session.Record{}, f.err
	}
	r, ok := f.records[id]
	if !ok {
		return session.Record{}, &session.PersistenceError{Op: "load", ID: id, Err: session.ErrNotFound}
	}
	return r, nil
}

func (f *fakeSessions) List(context.Context) ([]session.Info, error) {
	return f.infos, f.err
}

type fakeFeedback struct {
	recorded []feedback.Feedback
	err      error
}

func (f *fakeFeedback) Record(_ context.Context, fb feedback.Feedback) (feedback.Feedback, error) {
	if f.err != nil {
		return feedback.Feedback{}, f.err
	}
	fb.ID = "fb-1"
	f.recorded = append(f.recorded, fb)
	return fb, nil
}

func (f *fakeFeedback) All(context.Context) ([]feedback.Feedback, error) {
	return f.recorded, f.err
}

type fakeAnalyzer struct {
	analysis feedback.Analysis
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context) (feedback.Analysis, error) {
	return f.analysis, f.err
}

type fakeArchive struct {
	hits  []archive.Hit
	query string
	topK  int
}

func (f *fakeArchive) Search(_ context.Context, query string, topK int, _ string) ([]archive.Hit, error) {
	f.query = query
	f.topK = topK
	return f.hits, nil
}

// memoryJobs is an in-memory JobStore.
type memoryJobs struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*Job
	updates []JobUpdate
}

func newMemoryJobs() *memoryJobs {
	return &memoryJobs{jobs: make(map[uuid.UUID]*Job)}
}

func (m *memoryJobs) CreateJob(_ context.Context, query string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{ID: uuid.New(), Query: query, Status: StatusPending, Stage: research.StagePending.String(), CreatedAt: time.Now()}
	m.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (m *memoryJobs) UpdateJob(_ context.Context, id uuid.UUID, u JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	m.updates = append(m.updates, u)
	if u.Status != "" {
		job.Status = u.Status
	}
	if u.Stage != "" {
		job.Stage = u.Stage
	}
	if u.State != nil {
		data, err := json.Marshal(u.State)
		if err != nil {
			return err
		}
		job.State = data
	}
	if u.SessionID != "" {
		job.SessionID = &u.SessionID
	}
	if u.Error != "" {
		job.Error = &u.Error
	}
	return nil
}

func (m *memoryJobs) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryJobs) ListJobs(context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memoryJobs) GetJobLogs(context.Context, uuid.UUID) ([]LogEntry, error) {
	return nil, nil
}

// recordingDB captures log inserts.
type recordingDB struct {
	mu   sync.Mutex
	rows [][]any
	err  error
}

func (r *recordingDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, args)
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

var errBoom = errors.New("boom")
