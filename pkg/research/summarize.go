package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// TextSplitter splits long text into prompt-sized chunks.
type TextSplitter interface {
	SplitText(text string) ([]string, error)
}

// Summarizer condenses the retrieved information. It does not depend on the
// plan. When the material is longer than one chunk, every chunk is first
// condensed to notes and the notes are summarized.
type Summarizer struct {
	Reasoner Reasoner
	Splitter TextSplitter
	Timeout  time.Duration
	Logger   *slog.Logger
}

func (s *Summarizer) Name() StepName { return StepSummarize }

func (s *Summarizer) Run(ctx context.Context, state ResearchState) Delta {
	log := logger(s.Logger)
	if !state.HasResults() {
		return s.fail(errors.New("no retrieval results available to summarize"))
	}

	material := combineResults(state.SubQueries, state.RetrievedInfo)

	if s.Splitter != nil {
		chunks, err := s.Splitter.SplitText(material)
		if err != nil {
			log.Warn("Failed to split material, summarizing in one pass", "error", err)
		} else if len(chunks) > 1 {
			notes, err := s.condense(ctx, chunks)
			if err != nil {
				return s.fail(err)
			}
			material = notes
		}
	}

	var resp SummarizedOutput
	callCtx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	err := s.Reasoner.CompleteStructured(callCtx, Prompt{
		System: summarySystemPrompt,
		User:   "Please summarize the following information:\n\n" + material + "\n\nProvide a concise summary.",
	}, SummarySchema, &resp)
	if err != nil {
		return s.fail(fmt.Errorf("failed to summarize information: %w", err))
	}
	if resp.KeyPoints == nil {
		resp.KeyPoints = []string{}
	}

	log.Info("Summary generated", "length", len(resp.SummaryText), "key_points", len(resp.KeyPoints))
	return Delta{Summary: &resp}
}

// condense turns every chunk into notes with a free-form completion.
func (s *Summarizer) condense(ctx context.Context, chunks []string) (string, error) {
	logger(s.Logger).Info("Condensing long material", "chunks", len(chunks))
	notes := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		callCtx, cancel := withTimeout(ctx, s.Timeout)
		note, err := s.Reasoner.Complete(callCtx, Prompt{System: excerptSystemPrompt, User: chunk})
		cancel()
		if err != nil {
			return "", fmt.Errorf("failed to condense chunk %d: %w", i+1, err)
		}
		notes = append(notes, strings.TrimSpace(note))
	}
	return strings.Join(notes, "\n---\n"), nil
}

func (s *Summarizer) fail(err error) Delta {
	se := &StepError{Kind: KindSummarization, Step: StepSummarize, Err: err}
	logger(s.Logger).Error("Summarization failed", "error", err)
	return Delta{Failures: []StepFailure{se.failure(false)}}
}

func combineResults(subQueries []string, info map[string][]RetrievalResult) string {
	var parts []string
	for _, q := range orderedKeys(subQueries, info) {
		results := info[q]
		if len(results) == 0 {
			continue
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Information regarding '%s':\n", q))
		for _, r := range results {
			sb.WriteString(fmt.Sprintf("%s\n%s\nSource: %s\n", r.Title, r.Snippet, r.URL))
		}
		sb.WriteString("---")
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n")
}
