package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mikeboe/research-advisor/pkg/research"
)

const defaultTavilyURL = "https://api.tavily.com/search"

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// TavilySearcher searches the web through the Tavily API. It implements
// research.Searcher.
type TavilySearcher struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewTavilySearcher creates a Tavily searcher.
func NewTavilySearcher(apiKey string, maxResults int) (*TavilySearcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY is not set")
	}
	return &TavilySearcher{
		APIKey:     apiKey,
		BaseURL:    defaultTavilyURL,
		MaxResults: maxResults,
		HTTPClient: http.DefaultClient,
		Logger:     slog.Default(),
	}, nil
}

// Search runs one web search and returns the results in ranking order.
func (s *TavilySearcher) Search(ctx context.Context, query string) ([]research.RetrievalResult, error) {
	maxResults := s.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	jsonBody, err := json.Marshal(tavilyRequest{Query: query, MaxResults: maxResults, SearchDepth: "basic"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search response: %w", err)
	}

	results := make([]research.RetrievalResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, research.RetrievalResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
	}
	if s.Logger != nil {
		s.Logger.Debug("Tavily search finished", "query", query, "count", len(results))
	}
	return results, nil
}
