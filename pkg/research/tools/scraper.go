package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultOCRURL = "https://api.mistral.ai/v1/ocr"

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// PDFReader extracts the text of a PDF, such as an arXiv paper found during
// research, through the Mistral OCR API.
type PDFReader struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewPDFReader creates a reader. It returns nil when no API key is set so
// callers can skip registering the tool.
func NewPDFReader(apiKey string) *PDFReader {
	if apiKey == "" {
		return nil
	}
	return &PDFReader{APIKey: apiKey, BaseURL: defaultOCRURL, HTTPClient: http.DefaultClient}
}

// Read returns the document as markdown, one section per page.
func (r *PDFReader) Read(ctx context.Context, url string) (string, error) {
	url = strings.Replace(url, "http://", "https://", 1)
	slog.Info("Reading PDF", "url", url)

	reqBody := map[string]any{
		"model": "mistral-ocr-latest",
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.APIKey)

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var ocrResponse OcrResponse
	if err := json.Unmarshal(body, &ocrResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# URL: %s\n\n", url))
	for _, page := range ocrResponse.Pages {
		sb.WriteString(fmt.Sprintf("- Page %d -\n", page.Index))
		sb.WriteString(page.Markdown)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}
