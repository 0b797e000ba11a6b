package research

import (
	"context"
	"errors"
	"sync"
)

type fakeReasoner struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	text      string
	calls     []string
	prompts   []Prompt
}

func newFakeReasoner() *fakeReasoner {
	return &fakeReasoner{
		responses: map[string]string{
			SubQueriesSchema.Name: `{"queries": ["effects of caffeine on sleep quality", "caffeine half-life and timing"]}`,
			PlanSchema.Name:       `{"steps": ["Compare findings", "Answer the query"], "synthesis_questions": ["How long before bed should caffeine stop?"]}`,
			SummarySchema.Name:    `{"summary_text": "Caffeine delays and fragments sleep.", "key_points": ["Half-life is about five hours"]}`,
		},
		errs: map[string]error{},
		text: "condensed notes",
	}
}

func (f *fakeReasoner) Complete(ctx context.Context, prompt Prompt) (string, error) {
	f.record("complete", prompt)
	if err := f.errs["complete"]; err != nil {
		return "", err
	}
	return f.text, nil
}

func (f *fakeReasoner) CompleteStructured(ctx context.Context, prompt Prompt, schema *Schema, out any) error {
	f.record(schema.Name, prompt)
	f.mu.Lock()
	err := f.errs[schema.Name]
	content := f.responses[schema.Name]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return schema.Decode(content, out)
}

func (f *fakeReasoner) record(name string, prompt Prompt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.prompts = append(f.prompts, prompt)
}

func (f *fakeReasoner) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]RetrievalResult
	errs    map[string]error
	failAll bool
	queries []string
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		results: map[string][]RetrievalResult{
			"effects of caffeine on sleep quality": {
				{Title: "Caffeine and sleep", URL: "https://example.org/sleep", Snippet: "Caffeine reduces deep sleep."},
			},
			"caffeine half-life and timing": {
				{Title: "Half-life of caffeine", URL: "https://example.org/half-life", Snippet: "About five hours in adults."},
				{Title: "Timing", URL: "https://example.org/timing", Snippet: "Avoid caffeine six hours before bed."},
			},
		},
		errs: map[string]error{},
	}
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]RetrievalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.failAll {
		return nil, errors.New("search service unavailable")
	}
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakePersister struct {
	mu     sync.Mutex
	saved  []ResearchState
	err    error
	nextID string
}

func (f *fakePersister) Save(ctx context.Context, state ResearchState) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, state)
	return f.nextID, nil
}

type funcStep struct {
	name StepName
	fn   func(ctx context.Context, state ResearchState) Delta
}

func (s funcStep) Name() StepName { return s.name }

func (s funcStep) Run(ctx context.Context, state ResearchState) Delta { return s.fn(ctx, state) }
