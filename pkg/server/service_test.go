package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-advisor/pkg/research"
)

type scriptedReasoner struct {
	responses map[string]string
	err       error
}

func newScriptedReasoner() *scriptedReasoner {
	return &scriptedReasoner{responses: map[string]string{
		research.SubQueriesSchema.Name: `{"queries": ["caffeine half-life"]}`,
		research.PlanSchema.Name:       `{"steps": ["Compare studies"], "synthesis_questions": []}`,
		research.SummarySchema.Name:    `{"summary_text": "Caffeine lingers.", "key_points": ["Five hour half-life"]}`,
	}}
}

func (r *scriptedReasoner) Complete(context.Context, research.Prompt) (string, error) {
	return "notes", nil
}

func (r *scriptedReasoner) CompleteStructured(_ context.Context, _ research.Prompt, schema *research.Schema, out any) error {
	if r.err != nil {
		return r.err
	}
	return schema.Decode(r.responses[schema.Name], out)
}

type staticSearcher struct{}

func (staticSearcher) Search(context.Context, string) ([]research.RetrievalResult, error) {
	return []research.RetrievalResult{{Title: "Half-life", URL: "https://example.org/a", Snippet: "About five hours."}}, nil
}

type stubPersister struct {
	id  string
	err error
}

func (p stubPersister) Save(context.Context, research.ResearchState) (string, error) {
	return p.id, p.err
}

func engineFactory(reasoner research.Reasoner, persister research.Persister) EngineFactory {
	return func(log *slog.Logger) *research.ResearchEngine {
		return research.NewEngine(reasoner, staticSearcher{},
			research.WithLogger(log),
			research.WithPersister(persister),
		)
	}
}

func runJob(t *testing.T, factory EngineFactory) (*memoryJobs, *Job) {
	t.Helper()
	jobs := newMemoryJobs()
	svc := NewService(jobs, factory)

	job, err := svc.CreateJob(context.Background(), CreateJobRequest{Query: "  How long does caffeine last?  "})
	require.NoError(t, err)
	assert.Equal(t, "How long does caffeine last?", job.Query)
	assert.Equal(t, StatusPending, job.Status)

	svc.Wait()

	final, err := svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	return jobs, final
}

func TestServiceRunsJob(t *testing.T) {
	jobs, job := runJob(t, engineFactory(newScriptedReasoner(), stubPersister{id: "20240101_000000_000000"}))

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "done", job.Stage)
	require.NotNil(t, job.SessionID)
	assert.Equal(t, "20240101_000000_000000", *job.SessionID)
	assert.Nil(t, job.Error)

	var state research.ResearchState
	require.NoError(t, json.Unmarshal(job.State, &state))
	assert.Equal(t, "Caffeine lingers.", state.Summary.SummaryText)

	assert.Equal(t, StatusRunning, jobs.updates[0].Status)
	var stages []string
	for _, u := range jobs.updates[1 : len(jobs.updates)-1] {
		assert.Empty(t, u.Status, "intermediate updates only carry progress")
		stages = append(stages, u.Stage)
	}
	assert.Equal(t, "deconstructed", stages[0])
	assert.Equal(t, "done", stages[len(stages)-1])
}

func TestServiceFatalRun(t *testing.T) {
	reasoner := newScriptedReasoner()
	reasoner.err = errors.New("quota exceeded")

	_, job := runJob(t, engineFactory(reasoner, stubPersister{id: "20240101_000000_000000"}))

	assert.Equal(t, StatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "quota exceeded")
	require.NotNil(t, job.SessionID, "failed runs are still saved")
}

func TestServiceSaveFailure(t *testing.T) {
	_, job := runJob(t, engineFactory(newScriptedReasoner(), stubPersister{err: errors.New("disk full")}))

	assert.Equal(t, StatusFailed, job.Status)
	assert.Nil(t, job.SessionID)
	require.NotNil(t, job.Error)
	assert.Equal(t, "failed to save session: disk full", *job.Error)
	assert.NotEmpty(t, job.State, "state is kept even when the save failed")
}

func TestServiceRejectsEmptyQuery(t *testing.T) {
	jobs := newMemoryJobs()
	svc := NewService(jobs, nil)

	_, err := svc.CreateJob(context.Background(), CreateJobRequest{Query: " \n"})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, jobs.jobs)
}

func TestJoinErrors(t *testing.T) {
	assert.Equal(t, "", joinErrors("", ""))
	assert.Equal(t, "a; b", joinErrors("a", "", "b"))
}
