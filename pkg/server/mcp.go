package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/research-advisor/pkg/assistant"
)

const mcpVersion = "1.0.0"

// NewMCPServer exposes the research tools over MCP. search_archive and
// read_pdf are only listed when the toolset has them.
func NewMCPServer(tools *assistant.ResearchToolset) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "research-advisor-mcp",
		Version: mcpVersion,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conduct_research",
		Description: "Run a full research session on a question and return its report.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args assistant.ConductResearchArgs) (*mcp.CallToolResult, any, error) {
		resp, err := tools.ConductResearch(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		text := resp.Report
		if resp.SessionID != "" {
			text = "Session: " + resp.SessionID + "\n\n" + text
		}
		if resp.Warning != "" {
			text += "\nWarning: " + resp.Warning + "\n"
		}
		return textResult(text), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session",
		Description: "Get the report of a saved research session by its id.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args assistant.GetSessionArgs) (*mcp.CallToolResult, any, error) {
		resp, err := tools.GetSession(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		return textResult(resp.Report), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List saved research sessions, newest first.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args assistant.ListSessionsArgs) (*mcp.CallToolResult, any, error) {
		resp, err := tools.ListSessions(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		data, err := json.MarshalIndent(resp.Sessions, "", "  ")
		if err != nil {
			return nil, nil, err
		}
		return textResult(string(data)), nil, nil
	})

	if tools.Archive != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "search_archive",
			Description: "Semantic search over the sources found in past research sessions.",
		}, func(ctx context.Context, _ *mcp.CallToolRequest, args assistant.SearchArchiveArgs) (*mcp.CallToolResult, any, error) {
			resp, err := tools.SearchArchive(ctx, args)
			if err != nil {
				return nil, nil, err
			}
			return textResult(resp.Results), nil, nil
		})
	}

	if tools.PDF != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "read_pdf",
			Description: "Read the full text of a PDF, such as an arXiv paper.",
		}, func(ctx context.Context, _ *mcp.CallToolRequest, args assistant.ReadPDFArgs) (*mcp.CallToolResult, any, error) {
			resp, err := tools.ReadPDF(ctx, args)
			if err != nil {
				return nil, nil, err
			}
			return textResult(resp.Content), nil, nil
		})
	}

	return server
}

// NewMCPHandler serves server over the streamable HTTP transport.
func NewMCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
