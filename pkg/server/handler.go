package server

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/research-advisor/pkg/archive"
	"github.com/mikeboe/research-advisor/pkg/assistant"
	"github.com/mikeboe/research-advisor/pkg/feedback"
	"github.com/mikeboe/research-advisor/pkg/research"
	"github.com/mikeboe/research-advisor/pkg/session"
)

const welcomeMessage = "Welcome to the AI Research Advisor API. Use the /api/research endpoint to make requests."

// JobRunner runs research in the background.
type JobRunner interface {
	CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
}

// FeedbackAnalyzer summarizes recorded feedback.
type FeedbackAnalyzer interface {
	Analyze(ctx context.Context) (feedback.Analysis, error)
}

// Assistant holds conversations with the research agent.
type Assistant interface {
	CreateConversation(ctx context.Context) (*assistant.Conversation, error)
	ListConversations(ctx context.Context) ([]assistant.Conversation, error)
	GetHistory(ctx context.Context, id uuid.UUID) ([]assistant.Message, error)
	SendMessage(ctx context.Context, id uuid.UUID, content string) (iter.Seq2[assistant.StreamEvent, error], error)
}

// Handler serves the HTTP API. Archive, Jobs, Assistant and MCP are optional;
// their routes are only registered when set.
type Handler struct {
	Research assistant.Researcher
	Sessions assistant.SessionReader
	Feedback feedback.Store
	Analyzer FeedbackAnalyzer

	Archive   assistant.ArchiveSearcher
	Jobs      JobRunner
	Assistant Assistant
	MCP       http.Handler
}

func NewHandler(r assistant.Researcher, sessions assistant.SessionReader, fb feedback.Store, analyzer FeedbackAnalyzer) *Handler {
	return &Handler{Research: r, Sessions: sessions, Feedback: fb, Analyzer: analyzer}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.welcome)
	if h.MCP != nil {
		r.Any("/mcp", gin.WrapH(h.MCP))
	}

	api := r.Group("/api")
	{
		api.POST("/research", h.conductResearch)

		api.GET("/sessions", h.listSessions)
		api.GET("/sessions/:id", h.getSession)
		if h.Archive != nil {
			api.GET("/sessions/search", h.searchArchive)
		}

		api.POST("/feedback", h.submitFeedback)
		api.GET("/feedback/analyze", h.analyzeFeedback)

		if h.Jobs != nil {
			api.POST("/jobs", h.createJob)
			api.GET("/jobs", h.listJobs)
			api.GET("/jobs/:id", h.getJob)
			api.GET("/jobs/:id/logs", h.getJobLogs)
		}

		if h.Assistant != nil {
			api.POST("/assistant/conversations", h.createConversation)
			api.GET("/assistant/conversations", h.listConversations)
			api.GET("/assistant/conversations/:id/messages", h.getMessages)
			api.POST("/assistant/conversations/:id/messages", h.sendMessage)
		}
	}
}

func (h *Handler) welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": welcomeMessage})
}

type ResearchRequest struct {
	Query string `json:"query"`
}

// ResearchResponse is the result of a synchronous run. The state is returned
// even when saving it failed; PersistenceWarning then says why.
type ResearchResponse struct {
	SessionID          string                 `json:"session_id,omitempty"`
	State              research.ResearchState `json:"state"`
	PersistenceWarning string                 `json:"persistence_warning,omitempty"`
}

func (h *Handler) conductResearch(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrEmptyQuery.Error()})
		return
	}

	state, id, err := h.Research.RunAndSave(c.Request.Context(), query)
	resp := ResearchResponse{SessionID: id, State: state}
	if err != nil {
		resp.PersistenceWarning = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listSessions(c *gin.Context) {
	infos, err := h.Sessions.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if infos == nil {
		infos = []session.Info{}
	}
	c.JSON(http.StatusOK, infos)
}

func (h *Handler) getSession(c *gin.Context) {
	record, err := h.Sessions.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) searchArchive(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	topK := 0
	if s := c.Query("top_k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be a positive integer"})
			return
		}
		topK = n
	}

	hits, err := h.Archive.Search(c.Request.Context(), query, topK, c.Query("session_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if hits == nil {
		hits = []archive.Hit{}
	}
	c.JSON(http.StatusOK, hits)
}

func (h *Handler) submitFeedback(c *gin.Context) {
	var fb feedback.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recorded, err := h.Feedback.Record(c.Request.Context(), fb)
	if err != nil {
		if errors.Is(err, feedback.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Feedback recorded successfully", "feedback_id": recorded.ID})
}

func (h *Handler) analyzeFeedback(c *gin.Context) {
	analysis, err := h.Analyzer.Analyze(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, feedback.Analysis{
			ErrorMessage: "An unexpected error occurred during feedback analysis: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (h *Handler) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Jobs.CreateJob(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Jobs.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	job, err := h.Jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	logs, err := h.Jobs.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) createConversation(c *gin.Context) {
	conv, err := h.Assistant.CreateConversation(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) listConversations(c *gin.Context) {
	convs, err := h.Assistant.ListConversations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if convs == nil {
		convs = []assistant.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) getMessages(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	msgs, err := h.Assistant.GetHistory(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if msgs == nil {
		msgs = []assistant.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sendMessage(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": assistant.ErrEmptyMessage.Error()})
		return
	}

	next, err := h.Assistant.SendMessage(c.Request.Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, assistant.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for event, err := range next {
		if err != nil {
			writeEvent(c, assistant.StreamEvent{Type: assistant.EventError, Payload: err.Error()})
			return
		}
		if !writeEvent(c, event) {
			return
		}
	}
}

// writeEvent sends one server-sent event and reports whether it was written.
func writeEvent(c *gin.Context, event assistant.StreamEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if _, err := c.Writer.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

func parseUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}
