package feedback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-advisor/pkg/research"
)

func TestFileStoreRecord(t *testing.T) {
	tests := []struct {
		name    string
		input   Feedback
		wantErr bool
	}{
		{"valid", Feedback{OriginalQuery: "caffeine", FeedbackText: "Clear.", Rating: 5}, false},
		{"no text is fine", Feedback{OriginalQuery: "caffeine", Rating: 3}, false},
		{"rating too low", Feedback{OriginalQuery: "caffeine", Rating: 0}, true},
		{"rating too high", Feedback{OriginalQuery: "caffeine", Rating: 6}, true},
		{"missing query", Feedback{OriginalQuery: "  ", Rating: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFileStore(filepath.Join(t.TempDir(), "logs", "feedback.jsonl"))
			got, err := store.Record(context.Background(), tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.False(t, got.Timestamp.IsZero())
		})
	}
}

func TestFileStoreAllSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	store := NewFileStore(path)
	store.now = func() time.Time { return time.Date(2024, 5, 23, 10, 0, 0, 0, time.UTC) }

	_, err := store.Record(context.Background(), Feedback{OriginalQuery: "q1", FeedbackText: "Very helpful!", Rating: 5})
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n{\"original_query\":\"q\",\"rating\":9}\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = store.Record(context.Background(), Feedback{OriginalQuery: "q2", FeedbackText: "Confusing plan.", Rating: 2, SessionID: "20240101_000000_000000"})
	require.NoError(t, err)

	entries, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "q1", entries[0].OriginalQuery)
	assert.Equal(t, "20240101_000000_000000", entries[1].SessionID)
	assert.Equal(t, time.Date(2024, 5, 23, 10, 0, 0, 0, time.UTC), entries[0].Timestamp)
}

func TestFileStoreAllMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.jsonl"))
	entries, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type memoryStore struct {
	entries []Feedback
	err     error
}

func (m *memoryStore) Record(_ context.Context, fb Feedback) (Feedback, error) {
	m.entries = append(m.entries, fb)
	return fb, nil
}

func (m *memoryStore) All(context.Context) ([]Feedback, error) {
	return m.entries, m.err
}

type textReasoner struct {
	text   string
	err    error
	prompt research.Prompt
}

func (r *textReasoner) Complete(_ context.Context, p research.Prompt) (string, error) {
	r.prompt = p
	return r.text, r.err
}

func (r *textReasoner) CompleteStructured(context.Context, research.Prompt, *research.Schema, any) error {
	return errors.New("not used")
}

func TestAnalyzer(t *testing.T) {
	rated := []Feedback{
		{OriginalQuery: "q1", FeedbackText: "Very helpful!", Rating: 5},
		{OriginalQuery: "q2", FeedbackText: "Confusing plan.", Rating: 2},
		{OriginalQuery: "q3", Rating: 5},
	}
	silent := []Feedback{{OriginalQuery: "q1", Rating: 4}, {OriginalQuery: "q2", Rating: 1}}

	tests := []struct {
		name        string
		entries     []Feedback
		reasoner    *textReasoner
		wantTotal   int
		wantAvg     *float64
		wantSummary string
		wantErrMsg  string
	}{
		{
			name:        "no entries",
			reasoner:    &textReasoner{},
			wantSummary: "No feedback entries found to analyze.",
		},
		{
			name:        "no text",
			entries:     silent,
			reasoner:    &textReasoner{},
			wantTotal:   2,
			wantAvg:     ptr(2.5),
			wantSummary: "No textual feedback provided to summarize.",
		},
		{
			name:        "summarized",
			entries:     rated,
			reasoner:    &textReasoner{text: "  Users like the answers but find plans confusing. "},
			wantTotal:   3,
			wantAvg:     ptr(4.0),
			wantSummary: "Users like the answers but find plans confusing.",
		},
		{
			name:        "reasoner failure",
			entries:     rated,
			reasoner:    &textReasoner{err: errors.New("quota exceeded")},
			wantTotal:   3,
			wantAvg:     ptr(4.0),
			wantSummary: "Could not generate AI summary due to an error.",
			wantErrMsg:  "LLM summarization error: quota exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(&memoryStore{entries: tt.entries}, tt.reasoner)
			got, err := a.Analyze(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantTotal, got.TotalEntries)
			assert.Equal(t, tt.wantAvg, got.AverageRating)
			assert.Equal(t, tt.wantSummary, got.Summary)
			assert.Equal(t, tt.wantErrMsg, got.ErrorMessage)
		})
	}
}

func TestAnalyzerPromptListsTextualFeedback(t *testing.T) {
	r := &textReasoner{text: "ok"}
	a := NewAnalyzer(&memoryStore{entries: []Feedback{
		{OriginalQuery: "q1", FeedbackText: "Very helpful!", Rating: 5},
		{OriginalQuery: "q2", Rating: 1},
	}}, r)

	_, err := a.Analyze(context.Background())
	require.NoError(t, err)
	assert.Contains(t, r.prompt.User, "- Rating: 5/5, Feedback: Very helpful!")
	assert.Equal(t, 1, strings.Count(r.prompt.User, "- Rating:"))
}

func TestAnalyzerStoreFailure(t *testing.T) {
	a := NewAnalyzer(&memoryStore{err: errors.New("disk")}, &textReasoner{})
	_, err := a.Analyze(context.Background())
	assert.Error(t, err)
}

func ptr(f float64) *float64 { return &f }
