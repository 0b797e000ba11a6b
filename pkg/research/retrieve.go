package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Retriever runs one search per sub-query. Searches run concurrently and
// the step returns only after every one of them succeeded or failed. A
// failed sub-query maps to an empty result list and adds one RetrievalError.
type Retriever struct {
	Searcher    Searcher
	Concurrency int
	Timeout     time.Duration
	Logger      *slog.Logger
}

func (r *Retriever) Name() StepName { return StepRetrieve }

func (r *Retriever) Run(ctx context.Context, state ResearchState) Delta {
	log := logger(r.Logger)
	queries := normalizeQueries(state.SubQueries, 0)
	if len(queries) == 0 {
		se := &StepError{Kind: KindRetrieval, Step: StepRetrieve, Err: errors.New("no sub-queries to retrieve")}
		return Delta{Failures: []StepFailure{se.failure(true)}}
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultConfig().RetrievalConcurrency
	}

	results := make([][]RetrievalResult, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, q := range queries {
		g.Go(func() error {
			results[i], errs[i] = r.search(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	info := make(map[string][]RetrievalResult, len(queries))
	var failures []StepFailure
	for i, q := range queries {
		if errs[i] != nil {
			log.Error("Search failed", "query", q, "error", errs[i])
			se := &StepError{Kind: KindRetrieval, Step: StepRetrieve, SubQuery: q, Err: errs[i]}
			failures = append(failures, se.failure(false))
			info[q] = []RetrievalResult{}
			continue
		}
		log.Info("Search successful", "query", q, "count", len(results[i]))
		info[q] = results[i]
	}

	return Delta{RetrievedInfo: info, Failures: failures}
}

// search issues one call and validates its results. A panic in the searcher
// is reported as that sub-query's failure.
func (r *Retriever) search(ctx context.Context, query string) (results []RetrievalResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			results, err = nil, fmt.Errorf("search panicked: %v", p)
		}
	}()

	callCtx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	raw, err := r.Searcher.Search(callCtx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	valid := make([]RetrievalResult, 0, len(raw))
	for _, res := range raw {
		res.Title = strings.TrimSpace(res.Title)
		res.URL = strings.TrimSpace(res.URL)
		res.Snippet = strings.TrimSpace(res.Snippet)
		if res.Title == "" && res.URL == "" {
			continue
		}
		valid = append(valid, res)
	}
	if len(raw) > 0 && len(valid) == 0 {
		return nil, fmt.Errorf("search returned %d malformed results", len(raw))
	}
	return valid, nil
}
