package research

import "context"

// Reasoner is the language model collaborator used by Deconstruct, Plan and
// Summarize.
type Reasoner interface {
	// Complete returns free-form text.
	Complete(ctx context.Context, prompt Prompt) (string, error)
	// CompleteStructured fills out with a JSON object matching schema, or
	// returns a *SchemaValidationError.
	CompleteStructured(ctx context.Context, prompt Prompt, schema *Schema, out any) error
}

// Searcher is the web search collaborator used by Retrieve.
type Searcher interface {
	Search(ctx context.Context, query string) ([]RetrievalResult, error)
}

// Persister stores the terminal state of a run and returns its session ID.
type Persister interface {
	Save(ctx context.Context, state ResearchState) (string, error)
}

// Archiver receives every saved session. Failures are logged by the engine
// and never affect the run.
type Archiver interface {
	Archive(ctx context.Context, sessionID string, state ResearchState) error
}
