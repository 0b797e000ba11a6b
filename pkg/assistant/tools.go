package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/research-advisor/pkg/archive"
	"github.com/mikeboe/research-advisor/pkg/research"
	"github.com/mikeboe/research-advisor/pkg/session"
)

// Researcher runs and saves a research session.
type Researcher interface {
	RunAndSave(ctx context.Context, query string) (research.ResearchState, string, error)
}

// SessionReader reads saved sessions.
type SessionReader interface {
	Load(ctx context.Context, id string) (session.Record, error)
	List(ctx context.Context) ([]session.Info, error)
}

// ArchiveSearcher searches the retrieval results of past sessions.
type ArchiveSearcher interface {
	Search(ctx context.Context, query string, topK int, sessionID string) ([]archive.Hit, error)
}

// PDFReader returns the text of a PDF document.
type PDFReader interface {
	Read(ctx context.Context, url string) (string, error)
}

// ResearchToolset exposes research operations to the assistant agent and to
// MCP clients. Archive and PDF are optional.
type ResearchToolset struct {
	Research Researcher
	Sessions SessionReader
	Archive  ArchiveSearcher
	PDF      PDFReader
	Logger   *slog.Logger
}

func NewResearchToolset(r Researcher, sessions SessionReader) *ResearchToolset {
	return &ResearchToolset{Research: r, Sessions: sessions}
}

func (t *ResearchToolset) Name() string {
	return "research_tools"
}

func (t *ResearchToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	conductTool, err := functiontool.New[ConductResearchArgs, ConductResearchResp](
		functiontool.Config{
			Name:        "conduct_research",
			Description: "Run a full research session on a question: deconstruct it, search, plan and summarize. Slow; use it for new questions.",
		},
		func(ctx tool.Context, args ConductResearchArgs) (ConductResearchResp, error) {
			return t.ConductResearch(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conduct_research tool: %w", err)
	}

	getTool, err := functiontool.New[GetSessionArgs, GetSessionResp](
		functiontool.Config{
			Name:        "get_session",
			Description: "Get the report of a saved research session by its id.",
		},
		func(ctx tool.Context, args GetSessionArgs) (GetSessionResp, error) {
			return t.GetSession(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create get_session tool: %w", err)
	}

	listTool, err := functiontool.New[ListSessionsArgs, ListSessionsResp](
		functiontool.Config{
			Name:        "list_sessions",
			Description: "List saved research sessions, newest first.",
		},
		func(ctx tool.Context, args ListSessionsArgs) (ListSessionsResp, error) {
			return t.ListSessions(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create list_sessions tool: %w", err)
	}

	tools := []tool.Tool{conductTool, getTool, listTool}

	if t.Archive != nil {
		searchTool, err := functiontool.New[SearchArchiveArgs, SearchArchiveResp](
			functiontool.Config{
				Name:        "search_archive",
				Description: "Semantic search over the sources found in past research sessions.",
			},
			func(ctx tool.Context, args SearchArchiveArgs) (SearchArchiveResp, error) {
				return t.SearchArchive(ctx, args)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create search_archive tool: %w", err)
		}
		tools = append(tools, searchTool)
	}

	if t.PDF != nil {
		pdfTool, err := functiontool.New[ReadPDFArgs, ReadPDFResp](
			functiontool.Config{
				Name:        "read_pdf",
				Description: "Read the full text of a PDF, such as an arXiv paper found during research.",
			},
			func(ctx tool.Context, args ReadPDFArgs) (ReadPDFResp, error) {
				return t.ReadPDF(ctx, args)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create read_pdf tool: %w", err)
		}
		tools = append(tools, pdfTool)
	}

	return tools, nil
}

type ConductResearchArgs struct {
	Query string `json:"query" jsonschema:"The research question"`
}

type ConductResearchResp struct {
	SessionID string `json:"session_id,omitempty"`
	Report    string `json:"report"`
	Warning   string `json:"warning,omitempty"`
}

func (t *ResearchToolset) ConductResearch(ctx context.Context, args ConductResearchArgs) (ConductResearchResp, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return ConductResearchResp{}, fmt.Errorf("query must not be empty")
	}

	t.logger().Info("Conduct research", "query", query)
	state, id, err := t.Research.RunAndSave(ctx, query)

	resp := ConductResearchResp{SessionID: id, Report: FormatReport(state)}
	if err != nil {
		resp.Warning = fmt.Sprintf("session was not saved: %v", err)
	}
	return resp, nil
}

type GetSessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"The id of the saved session"`
}

type GetSessionResp struct {
	SessionID string `json:"session_id"`
	Report    string `json:"report"`
}

func (t *ResearchToolset) GetSession(ctx context.Context, args GetSessionArgs) (GetSessionResp, error) {
	record, err := t.Sessions.Load(ctx, strings.TrimSpace(args.SessionID))
	if err != nil {
		return GetSessionResp{}, err
	}
	return GetSessionResp{SessionID: record.ID, Report: FormatReport(record.ResearchState)}, nil
}

type ListSessionsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of sessions to return (default 20)"`
}

type ListSessionsResp struct {
	Sessions []session.Info `json:"sessions"`
}

func (t *ResearchToolset) ListSessions(ctx context.Context, args ListSessionsArgs) (ListSessionsResp, error) {
	if args.Limit <= 0 {
		args.Limit = 20
	}
	infos, err := t.Sessions.List(ctx)
	if err != nil {
		return ListSessionsResp{}, err
	}
	if len(infos) > args.Limit {
		infos = infos[:args.Limit]
	}
	if infos == nil {
		infos = []session.Info{}
	}
	return ListSessionsResp{Sessions: infos}, nil
}

type SearchArchiveArgs struct {
	Query     string `json:"query" jsonschema:"The search query"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"Number of results to return (default 5)"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Only search the sources of this session"`
}

type SearchArchiveResp struct {
	Results string `json:"results"`
}

func (t *ResearchToolset) SearchArchive(ctx context.Context, args SearchArchiveArgs) (SearchArchiveResp, error) {
	if t.Archive == nil {
		return SearchArchiveResp{}, fmt.Errorf("archive search is not configured")
	}
	t.logger().Info("Search archive", "query", args.Query, "topK", args.TopK, "session_id", args.SessionID)

	hits, err := t.Archive.Search(ctx, args.Query, args.TopK, args.SessionID)
	if err != nil {
		return SearchArchiveResp{}, fmt.Errorf("failed to search: %w", err)
	}

	formatted := make([]string, 0, len(hits))
	for _, hit := range hits {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("[Source]: %s\n[Content]: %s", hit.URL, hit.Content))
		sb.WriteString(fmt.Sprintf("\n[title]: %s\n[session_id]: %s\n[sub_query]: %s", hit.Title, hit.SessionID, hit.SubQuery))
		formatted = append(formatted, sb.String())
	}
	return SearchArchiveResp{Results: strings.Join(formatted, "\n\n")}, nil
}

type ReadPDFArgs struct {
	URL string `json:"url" jsonschema:"The URL of the PDF"`
}

type ReadPDFResp struct {
	Content string `json:"content"`
}

func (t *ResearchToolset) ReadPDF(ctx context.Context, args ReadPDFArgs) (ReadPDFResp, error) {
	if t.PDF == nil {
		return ReadPDFResp{}, fmt.Errorf("PDF reading is not configured")
	}
	text, err := t.PDF.Read(ctx, args.URL)
	if err != nil {
		return ReadPDFResp{}, err
	}
	return ReadPDFResp{Content: text}, nil
}

func (t *ResearchToolset) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
