package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Step is one executor of the research graph. Run receives a private
// snapshot of the state and returns the fields it owns. It never returns an
// error; failures travel in Delta.Failures.
type Step interface {
	Name() StepName
	Run(ctx context.Context, state ResearchState) Delta
}

// Deconstructor splits the original query into sub-queries.
//
// An empty decomposition is fatal: the run goes to the error handler.
type Deconstructor struct {
	Reasoner      Reasoner
	MaxSubQueries int
	Timeout       time.Duration
	Logger        *slog.Logger
}

func (d *Deconstructor) Name() StepName { return StepDeconstruct }

func (d *Deconstructor) Run(ctx context.Context, state ResearchState) Delta {
	query := strings.TrimSpace(state.OriginalQuery)
	if query == "" {
		return d.fail(nil, errors.New("query is empty"))
	}

	maxQueries := d.MaxSubQueries
	if maxQueries <= 0 {
		maxQueries = DefaultConfig().MaxSubQueries
	}

	var resp DeconstructedQueries
	callCtx, cancel := withTimeout(ctx, d.Timeout)
	defer cancel()
	err := d.Reasoner.CompleteStructured(callCtx, Prompt{
		System: fmt.Sprintf(deconstructSystemPrompt, maxQueries),
		User:   query,
	}, SubQueriesSchema, &resp)
	if err != nil {
		return d.fail(nil, fmt.Errorf("failed to deconstruct query: %w", err))
	}

	queries := normalizeQueries(resp.Queries, maxQueries)
	if len(queries) == 0 {
		return d.fail([]string{}, errors.New("decomposition produced no usable sub-queries"))
	}

	logger(d.Logger).Info("Generated sub-queries", "queries", queries)
	return Delta{SubQueries: queries}
}

func (d *Deconstructor) fail(subQueries []string, err error) Delta {
	se := &StepError{Kind: KindDeconstruction, Step: StepDeconstruct, Err: err}
	logger(d.Logger).Error("Deconstruction failed", "error", err)
	return Delta{SubQueries: subQueries, Failures: []StepFailure{se.failure(true)}}
}

// normalizeQueries trims, drops blanks and case-insensitive duplicates, and
// caps the list.
func normalizeQueries(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, q := range in {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
