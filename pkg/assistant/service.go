// Package assistant is a conversational agent over the research tools. It
// keeps conversations in the database and streams agent output as events.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/mikeboe/research-advisor/pkg/config"
	"github.com/mikeboe/research-advisor/pkg/database"
)

const (
	appName   = "research-advisor"
	agentName = "research_advisor"
	userID    = "user" // single user for now
)

var (
	// ErrConversationNotFound is returned for an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message must not be empty")
)

const instruction = `You are a research advisor. Help the user investigate questions using the available tools.
- For a new question, call conduct_research and answer from its report.
- When the user refers to earlier research, use list_sessions and get_session.
- Use search_archive, when available, to find sources from past sessions before starting new research.
- Use read_pdf, when available, to read a paper the user asks about in detail.
Cite sources as markdown links. If a report lists errors, tell the user which parts are missing.`

type Service struct {
	DB         *database.PostgresDB
	Client     *genai.Client
	Agent      agent.Agent
	TitleModel string
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// StreamEvent types.
const (
	EventContent    = "content"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventError      = "error"
	EventDone       = "done"
)

// StreamEvent represents a single event in the assistant stream
type StreamEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func NewService(ctx context.Context, db *database.PostgresDB, cfg *config.Config, tools *ResearchToolset) (*Service, error) {
	if cfg.GoogleApiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required for the assistant")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.GoogleApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	modelClient, err := gemini.NewModel(ctx, cfg.ReasoningModel, &genai.ClientConfig{
		APIKey: cfg.GoogleApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	advisor, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       modelClient,
		Description: "A research advisor that runs and reviews research sessions.",
		Instruction: instruction,
		Toolsets: []tool.Toolset{
			tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &Service{
		DB:         db,
		Client:     client,
		Agent:      advisor,
		TitleModel: cfg.FastModel,
	}, nil
}

func (s *Service) CreateConversation(ctx context.Context) (*Conversation, error) {
	query := `INSERT INTO conversations (id) VALUES ($1) RETURNING id, title, created_at, updated_at`

	conv := &Conversation{}
	err := s.DB.Pool.QueryRow(ctx, query, uuid.New()).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context) ([]Conversation, error) {
	query := `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Service) GetHistory(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	query := `SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	rows, err := s.DB.Pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Service) conversationExists(ctx context.Context, id uuid.UUID) error {
	var found uuid.UUID
	err := s.DB.Pool.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConversationNotFound
	}
	return err
}

// SendMessage stores the user message and returns the agent's event stream.
// The model reply is stored once the stream is drained.
func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (iter.Seq2[StreamEvent, error], error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if err := s.conversationExists(ctx, conversationID); err != nil {
		return nil, err
	}

	history, err := s.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	_, err = s.DB.Pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, 'user', $3)`,
		uuid.New(), conversationID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	sessionSvc := session.InMemoryService()
	sessionID := conversationID.String()

	created, err := sessionSvc.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent session: %w", err)
	}

	for _, msg := range history {
		if err := sessionSvc.AppendEvent(ctx, created.Session, historyEvent(msg)); err != nil {
			return nil, fmt.Errorf("failed to restore history: %w", err)
		}
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          s.Agent,
		SessionService: sessionSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	userContent := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: content}},
	}

	return func(yield func(StreamEvent, error) bool) {
		slog.Info("Starting agent run", "conversation_id", conversationID)

		var reply strings.Builder
		streamed := false
		next := r.Run(ctx, userID, sessionID, userContent, agent.RunConfig{
			StreamingMode: agent.StreamingModeSSE,
		})

		for event, err := range next {
			if err != nil {
				slog.Error("Agent runner error", "error", err)
				yield(StreamEvent{Type: EventError, Payload: err.Error()}, err)
				return
			}
			if event.LLMResponse.Content == nil {
				continue
			}
			for _, part := range event.LLMResponse.Content.Parts {
				if part.Text != "" {
					// With streaming, partial chunks are followed by the full text.
					if event.LLMResponse.Partial {
						streamed = true
					}
					if event.LLMResponse.Partial || !streamed {
						reply.WriteString(part.Text)
						if !yield(StreamEvent{Type: EventContent, Payload: part.Text}, nil) {
							return
						}
					}
				}
				if part.FunctionCall != nil {
					slog.Info("Agent tool call", "tool", part.FunctionCall.Name)
					if !yield(StreamEvent{Type: EventToolCall, Payload: part.FunctionCall}, nil) {
						return
					}
				}
				if part.FunctionResponse != nil {
					slog.Info("Agent tool result", "tool", part.FunctionResponse.Name)
					if !yield(StreamEvent{Type: EventToolResult, Payload: part.FunctionResponse}, nil) {
						return
					}
				}
			}
		}

		slog.Info("Agent run completed", "conversation_id", conversationID)

		// The request may be gone by now; the reply is still kept.
		saveCtx := context.WithoutCancel(ctx)
		_, err := s.DB.Pool.Exec(saveCtx,
			`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, 'model', $3)`,
			uuid.New(), conversationID, reply.String())
		if err != nil {
			slog.Error("Failed to save model message", "error", err)
		} else {
			_, _ = s.DB.Pool.Exec(saveCtx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID)
		}

		yield(StreamEvent{Type: EventDone, Payload: "done"}, nil)

		if len(history) == 0 {
			go s.generateTitle(conversationID, content, reply.String())
		}
	}, nil
}

func historyEvent(msg Message) *session.Event {
	role := "user"
	author := "user"
	if msg.Role == "model" {
		role = "model"
		author = agentName
	}

	evt := session.NewEvent(uuid.NewString())
	evt.Author = author
	evt.LLMResponse = model.LLMResponse{
		Content: &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		},
	}
	return evt
}

func (s *Service) generateTitle(convID uuid.UUID, userMsg, modelMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Generate a short, concise title (max 5 words) for this research conversation:\nUser: %s\nModel: %s", userMsg, modelMsg)

	returnSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {Type: genai.TypeString},
		},
		Required: []string{"title"},
	}

	resp, err := s.Client.Models.GenerateContent(ctx, s.TitleModel, []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   returnSchema,
	})
	if err != nil {
		slog.Warn("Failed to generate conversation title", "error", err)
		return
	}

	var respData struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(resp.Text()), &respData); err != nil {
		slog.Error("Failed to unmarshal title generation response", "error", err)
		return
	}

	if title := strings.TrimSpace(respData.Title); title != "" {
		if _, err := s.DB.Pool.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, convID, title); err != nil {
			slog.Error("Failed to update conversation title", "error", err)
		}
	}
}
