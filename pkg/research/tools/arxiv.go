package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/research-advisor/pkg/research"
)

const defaultArxivURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// ArxivSearcher searches the arXiv API. It implements research.Searcher.
type ArxivSearcher struct {
	BaseURL    string
	MaxResults int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewArxivSearcher creates a searcher against the public arXiv API.
func NewArxivSearcher(maxResults int) *ArxivSearcher {
	return &ArxivSearcher{
		BaseURL:    defaultArxivURL,
		MaxResults: maxResults,
		HTTPClient: http.DefaultClient,
		Logger:     slog.Default(),
	}
}

// Search queries the arXiv API and maps each entry to a retrieval result.
func (s *ArxivSearcher) Search(ctx context.Context, query string) ([]research.RetrievalResult, error) {
	maxResults := s.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := s.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger().Error("API returned non-200 status code", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	results := make([]research.RetrievalResult, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		results = append(results, research.RetrievalResult{
			Title:   collapseSpace(entry.Title),
			URL:     entry.url(),
			Snippet: collapseSpace(entry.Summary),
		})
	}
	s.logger().Debug("arXiv search finished", "query", query, "count", len(results))
	return results, nil
}

// url prefers the abstract page, then the PDF, then the entry id.
func (e ArxivEntry) url() string {
	var pdf string
	for _, link := range e.Link {
		if link.Rel == "alternate" && link.Href != "" {
			return link.Href
		}
		if link.Type == "application/pdf" && pdf == "" {
			pdf = link.Href
		}
	}
	if pdf != "" {
		return pdf
	}
	return strings.TrimSpace(e.ID)
}

func (s *ArxivSearcher) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

func (s *ArxivSearcher) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
