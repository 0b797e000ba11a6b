package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/research-advisor/pkg/research"
)

const (
	noEntriesSummary = "No feedback entries found to analyze."
	noTextSummary    = "No textual feedback provided to summarize."
	failedSummary    = "Could not generate AI summary due to an error."
)

const analysisPrompt = `Analyze the following user feedback entries for an AI Research Advisor application.
Provide a concise summary of common themes, praises, criticisms, and suggestions.
Focus on actionable insights that could help improve the application.`

// Analysis aggregates the recorded feedback.
type Analysis struct {
	TotalEntries  int      `json:"total_feedback_entries"`
	AverageRating *float64 `json:"average_rating"`
	Summary       string   `json:"feedback_summary"`
	ErrorMessage  string   `json:"error_message,omitempty"`
}

// Analyzer summarizes feedback with the reasoning service.
type Analyzer struct {
	Store    Store
	Reasoner research.Reasoner
	Logger   *slog.Logger
}

func NewAnalyzer(store Store, reasoner research.Reasoner) *Analyzer {
	return &Analyzer{Store: store, Reasoner: reasoner, Logger: slog.Default()}
}

// Analyze reports totals and an AI summary of the feedback texts. A failed
// summary is reported in the result, not as an error; only a failure to
// read the store is returned.
func (a *Analyzer) Analyze(ctx context.Context) (Analysis, error) {
	entries, err := a.Store.All(ctx)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to load feedback: %w", err)
	}
	if len(entries) == 0 {
		return Analysis{Summary: noEntriesSummary}, nil
	}

	total := 0
	var lines []string
	for _, e := range entries {
		total += e.Rating
		if e.FeedbackText != "" {
			lines = append(lines, fmt.Sprintf("- Rating: %d/5, Feedback: %s", e.Rating, e.FeedbackText))
		}
	}
	avg := float64(total) / float64(len(entries))
	result := Analysis{TotalEntries: len(entries), AverageRating: &avg}

	if len(lines) == 0 {
		result.Summary = noTextSummary
		return result, nil
	}

	summary, err := a.Reasoner.Complete(ctx, research.Prompt{
		System: analysisPrompt,
		User:   "Feedback Entries:\n" + strings.Join(lines, "\n") + "\n\nSummary:",
	})
	if err != nil {
		a.logger().Error("Error during feedback summarization", "error", err)
		result.Summary = failedSummary
		result.ErrorMessage = fmt.Sprintf("LLM summarization error: %v", err)
		return result, nil
	}
	result.Summary = strings.TrimSpace(summary)
	return result, nil
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
