// Package archive indexes the retrieval results of saved sessions for
// semantic search across past research.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/research-advisor/pkg/research"
	"github.com/mikeboe/research-advisor/pkg/vectorstore"
)

const embedBatchSize = 100

// DocumentStore is the vector storage behind an Index.
type DocumentStore interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
	SimilaritySearch(ctx context.Context, embedding []float32, topK int, filter map[string]any) ([]vectorstore.SimilaritySearchResult, error)
	DeleteByMetadata(ctx context.Context, filter map[string]any) (int64, error)
}

// Embedder turns texts into vectors, keeping their order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is one archived chunk matching a search.
type Hit struct {
	Content   string  `json:"content"`
	SessionID string  `json:"session_id"`
	SubQuery  string  `json:"sub_query"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
}

// Index implements research.Archiver.
type Index struct {
	Store    DocumentStore
	Embedder Embedder
	Splitter research.TextSplitter
	Logger   *slog.Logger
}

func NewIndex(store DocumentStore, embedder Embedder, splitter research.TextSplitter) *Index {
	return &Index{Store: store, Embedder: embedder, Splitter: splitter, Logger: slog.Default()}
}

// Archive replaces the indexed chunks of a session with the retrieval
// results of state.
func (ix *Index) Archive(ctx context.Context, sessionID string, state research.ResearchState) error {
	docs, err := ix.documents(sessionID, state)
	if err != nil {
		return err
	}

	if _, err := ix.Store.DeleteByMetadata(ctx, map[string]any{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to clear archived session: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vecs, err := ix.Embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vecs))
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}
		if err := ix.Store.AddDocuments(ctx, batch); err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
	}

	ix.logger().Info("Session archived", "session_id", sessionID, "chunks", len(docs))
	return nil
}

// documents chunks every retrieval result of the run, in sub-query order.
func (ix *Index) documents(sessionID string, state research.ResearchState) ([]vectorstore.Document, error) {
	var docs []vectorstore.Document
	for _, q := range state.SubQueries {
		for _, r := range state.RetrievedInfo[q] {
			text := strings.TrimSpace(r.Title + "\n" + r.Snippet)
			if text == "" {
				continue
			}
			chunks := []string{text}
			if ix.Splitter != nil {
				split, err := ix.Splitter.SplitText(text)
				if err != nil {
					return nil, fmt.Errorf("failed to split result %q: %w", r.URL, err)
				}
				chunks = split
			}
			for _, c := range chunks {
				docs = append(docs, vectorstore.Document{
					Content: c,
					Metadata: map[string]any{
						"session_id": sessionID,
						"sub_query":  q,
						"url":        r.URL,
						"title":      r.Title,
					},
				})
			}
		}
	}
	return docs, nil
}

// Search returns the topK archived chunks closest to query, optionally
// restricted to one session.
func (ix *Index) Search(ctx context.Context, query string, topK int, sessionID string) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if topK <= 0 {
		topK = 5
	}

	vecs, err := ix.Embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}

	var filter map[string]any
	if sessionID != "" {
		filter = map[string]any{"session_id": sessionID}
	}
	results, err := ix.Store.SimilaritySearch(ctx, vecs[0], topK, filter)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Content:   r.Document.Content,
			SessionID: metaString(r.Document.Metadata, "session_id"),
			SubQuery:  metaString(r.Document.Metadata, "sub_query"),
			Title:     metaString(r.Document.Metadata, "title"),
			URL:       metaString(r.Document.Metadata, "url"),
			Score:     r.Score,
		})
	}
	return hits, nil
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func (ix *Index) logger() *slog.Logger {
	if ix.Logger != nil {
		return ix.Logger
	}
	return slog.Default()
}
