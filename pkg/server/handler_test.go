package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-advisor/pkg/archive"
	"github.com/mikeboe/research-advisor/pkg/assistant"
	"github.com/mikeboe/research-advisor/pkg/feedback"
	"github.com/mikeboe/research-advisor/pkg/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func baseHandler() (*Handler, *fakeResearcher) {
	r := &fakeResearcher{id: "20240101_000000_000000"}
	h := NewHandler(r, &fakeSessions{}, &fakeFeedback{}, &fakeAnalyzer{})
	return h, r
}

func TestWelcome(t *testing.T) {
	h, _ := baseHandler()
	w := do(t, newRouter(h), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome to the AI Research Advisor API")
}

func TestConductResearch(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		saveErr     error
		wantStatus  int
		wantWarning string
		wantSession string
	}{
		{name: "ok", body: `{"query": "How long does caffeine last?"}`, wantStatus: http.StatusOK, wantSession: "20240101_000000_000000"},
		{name: "empty query", body: `{"query": "   "}`, wantStatus: http.StatusBadRequest},
		{name: "bad json", body: `{"query":`, wantStatus: http.StatusBadRequest},
		{
			name:        "save failed still returns state",
			body:        `{"query": "caffeine"}`,
			saveErr:     &session.PersistenceError{Op: "save", Err: errors.New("read-only file system")},
			wantStatus:  http.StatusOK,
			wantWarning: "PersistenceError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, r := baseHandler()
			if tt.saveErr != nil {
				r.id = ""
				r.err = tt.saveErr
			}

			w := do(t, newRouter(h), http.MethodPost, "/api/research", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, r.queries)
				return
			}

			var resp ResearchResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantSession, resp.SessionID)
			assert.Equal(t, "Caffeine lingers.", resp.State.Summary.SummaryText)
			if tt.wantWarning == "" {
				assert.Empty(t, resp.PersistenceWarning)
			} else {
				assert.Contains(t, resp.PersistenceWarning, tt.wantWarning)
			}
		})
	}
}

func TestSessions(t *testing.T) {
	record := session.Record{ID: "20240101_000000_000000", ResearchState: answeredState("caffeine")}
	sessions := &fakeSessions{
		records: map[string]session.Record{record.ID: record},
		infos:   []session.Info{{ID: record.ID, OriginalQuery: "caffeine"}},
	}
	h := NewHandler(&fakeResearcher{}, sessions, &fakeFeedback{}, &fakeAnalyzer{})
	r := newRouter(h)

	w := do(t, r, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"session_id":"20240101_000000_000000","original_query":"caffeine","timestamp":"0001-01-01T00:00:00Z","failed":false}]`, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/sessions/"+record.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, record.ID, got["session_id"])
	assert.Equal(t, "caffeine", got["original_query"])

	w = do(t, r, http.MethodGet, "/api/sessions/20990101_000000_000000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsEmptyListIsArray(t *testing.T) {
	h, _ := baseHandler()
	w := do(t, newRouter(h), http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestSessionsStoreFailure(t *testing.T) {
	h := NewHandler(&fakeResearcher{}, &fakeSessions{err: errBoom}, &fakeFeedback{}, &fakeAnalyzer{})
	r := newRouter(h)

	assert.Equal(t, http.StatusInternalServerError, do(t, r, http.MethodGet, "/api/sessions", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, r, http.MethodGet, "/api/sessions/x", "").Code)
}

func TestSearchArchive(t *testing.T) {
	h, _ := baseHandler()
	w := do(t, newRouter(h), http.MethodGet, "/api/sessions/search?q=x", "")
	assert.NotEqual(t, http.StatusOK, w.Code, "route is only served with an archive")

	a := &fakeArchive{hits: []archive.Hit{{Content: "About five hours.", SessionID: "s1", URL: "https://example.org/a"}}}
	h.Archive = a
	r := newRouter(h)

	w = do(t, r, http.MethodGet, "/api/sessions/search?q=caffeine&top_k=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "caffeine", a.query)
	assert.Equal(t, 2, a.topK)
	assert.Contains(t, w.Body.String(), `"session_id":"s1"`)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/sessions/search", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/sessions/search?q=x&top_k=lots", "").Code)
}

func TestSubmitFeedback(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		storeErr   error
		wantStatus int
	}{
		{"recorded", `{"original_query": "caffeine", "feedback_text": "Clear.", "rating": 5}`, nil, http.StatusCreated},
		{"invalid", `{"original_query": "caffeine", "rating": 9}`, fmt.Errorf("%w: rating must be between 1 and 5", feedback.ErrInvalid), http.StatusBadRequest},
		{"store down", `{"original_query": "caffeine", "rating": 4}`, errBoom, http.StatusInternalServerError},
		{"bad json", `rating=5`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeFeedback{err: tt.storeErr}
			h := NewHandler(&fakeResearcher{}, &fakeSessions{}, fb, &fakeAnalyzer{})

			w := do(t, newRouter(h), http.MethodPost, "/api/feedback", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusCreated {
				assert.JSONEq(t, `{"message":"Feedback recorded successfully","feedback_id":"fb-1"}`, w.Body.String())
				assert.Equal(t, "Clear.", fb.recorded[0].FeedbackText)
			}
		})
	}
}

func TestAnalyzeFeedback(t *testing.T) {
	avg := 4.0
	h := NewHandler(&fakeResearcher{}, &fakeSessions{}, &fakeFeedback{}, &fakeAnalyzer{
		analysis: feedback.Analysis{TotalEntries: 2, AverageRating: &avg, Summary: "Good."},
	})
	w := do(t, newRouter(h), http.MethodGet, "/api/feedback/analyze", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_feedback_entries":2,"average_rating":4,"feedback_summary":"Good."}`, w.Body.String())

	h.Analyzer = &fakeAnalyzer{err: errBoom}
	w = do(t, newRouter(h), http.MethodGet, "/api/feedback/analyze", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "An unexpected error occurred during feedback analysis: boom")
}

func TestJobRoutes(t *testing.T) {
	h, _ := baseHandler()
	assert.Equal(t, http.StatusNotFound, do(t, newRouter(h), http.MethodGet, "/api/jobs", "").Code)

	jobs := newMemoryJobs()
	h.Jobs = NewService(jobs, nil)
	r := newRouter(h)

	w := do(t, r, http.MethodPost, "/api/jobs", `{"query": ""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	job, err := jobs.CreateJob(context.Background(), "caffeine")
	require.NoError(t, err)

	w = do(t, r, http.MethodGet, "/api/jobs/"+job.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"query":"caffeine"`)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/jobs/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/jobs/not-a-uuid", "").Code)

	w = do(t, r, http.MethodGet, "/api/jobs/"+job.ID.String()+"/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

type fakeAssistant struct {
	events []assistant.StreamEvent
	err    error
	sent   string
}

func (f *fakeAssistant) CreateConversation(context.Context) (*assistant.Conversation, error) {
	return &assistant.Conversation{ID: uuid.New(), Title: "New Conversation"}, nil
}

func (f *fakeAssistant) ListConversations(context.Context) ([]assistant.Conversation, error) {
	return nil, nil
}

func (f *fakeAssistant) GetHistory(context.Context, uuid.UUID) ([]assistant.Message, error) {
	return nil, nil
}

func (f *fakeAssistant) SendMessage(_ context.Context, _ uuid.UUID, content string) (iter.Seq2[assistant.StreamEvent, error], error) {
	f.sent = content
	return func(yield func(assistant.StreamEvent, error) bool) {
		for _, e := range f.events {
			if !yield(e, nil) {
				return
			}
		}
		if f.err != nil {
			yield(assistant.StreamEvent{Type: assistant.EventError, Payload: f.err.Error()}, f.err)
		}
	}, nil
}

func TestAssistantStream(t *testing.T) {
	a := &fakeAssistant{events: []assistant.StreamEvent{
		{Type: assistant.EventContent, Payload: "Caffeine "},
		{Type: assistant.EventContent, Payload: "lingers."},
		{Type: assistant.EventDone, Payload: "done"},
	}}
	h, _ := baseHandler()
	h.Assistant = a
	r := newRouter(h)

	id := uuid.NewString()
	w := do(t, r, http.MethodPost, "/api/assistant/conversations/"+id+"/messages", `{"content": "How long does caffeine last?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "How long does caffeine last?", a.sent)

	events := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, events, 3)
	assert.Equal(t, `data: {"type":"content","payload":"Caffeine "}`, events[0])
	assert.Equal(t, `data: {"type":"done","payload":"done"}`, events[2])
}

func TestAssistantStreamError(t *testing.T) {
	a := &fakeAssistant{err: errors.New("model overloaded")}
	h, _ := baseHandler()
	h.Assistant = a

	w := do(t, newRouter(h), http.MethodPost, "/api/assistant/conversations/"+uuid.NewString()+"/messages", `{"content": "hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `data: {"type":"error","payload":"model overloaded"}`, strings.TrimSpace(w.Body.String()))
}

func TestAssistantRejectsEmptyMessage(t *testing.T) {
	a := &fakeAssistant{}
	h, _ := baseHandler()
	h.Assistant = a
	r := newRouter(h)

	for _, body := range []string{`{"content": "   "}`, `{}`, `{"message": "hi"}`} {
		w := do(t, r, http.MethodPost, "/api/assistant/conversations/"+uuid.NewString()+"/messages", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "message must not be empty")
	}
	assert.Empty(t, a.sent, "the assistant is not called")
}

func TestAssistantConversations(t *testing.T) {
	h, _ := baseHandler()
	h.Assistant = &fakeAssistant{}
	r := newRouter(h)

	assert.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/assistant/conversations", "").Code)

	w := do(t, r, http.MethodGet, "/api/assistant/conversations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	w = do(t, r, http.MethodGet, "/api/assistant/conversations/"+uuid.NewString()+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/assistant/conversations/nope/messages", "").Code)
}
