package research

import "time"

// Config holds runtime configuration for the engine
type Config struct {
	StepTimeout          time.Duration
	RetrievalConcurrency int
	MaxSubQueries        int
	MaxTransitions       int
	SequentialSynthesis  bool
}

// DefaultConfig returns the configuration used when no overrides are given.
func DefaultConfig() Config {
	return Config{
		StepTimeout:          60 * time.Second,
		RetrievalConcurrency: 4,
		MaxSubQueries:        5,
		MaxTransitions:       16,
	}
}

// RetrievalResult represents a single search result
type RetrievalResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// DeconstructedQueries is the structured response of the Deconstruct step.
type DeconstructedQueries struct {
	Queries []string `json:"queries" jsonschema:"Specific sub-queries that can be researched independently"`
}

// ResearchPlan is the structured plan produced by the Plan step.
type ResearchPlan struct {
	Steps              []string `json:"steps" jsonschema:"Ordered steps to execute the research"`
	SynthesisQuestions []string `json:"synthesis_questions" jsonschema:"Questions guiding the final synthesis"`
}

// SummarizedOutput is produced by the Summarize step.
type SummarizedOutput struct {
	SummaryText string   `json:"summary_text" jsonschema:"A concise, coherent summary"`
	KeyPoints   []string `json:"key_points" jsonschema:"The most important findings"`
}

// StepFailure is one entry of the failure trail of a run.
type StepFailure struct {
	Step     StepName  `json:"step"`
	Kind     ErrorKind `json:"kind"`
	SubQuery string    `json:"sub_query,omitempty"`
	Message  string    `json:"message"`
	Fatal    bool      `json:"fatal"`
}

// ResearchState tracks the progress of one research run.
//
// A nil slice, map or pointer means the owning step has not written the
// field yet. Error and Failures only ever grow.
type ResearchState struct {
	OriginalQuery string                       `json:"original_query"`
	SubQueries    []string                     `json:"sub_queries"`
	RetrievedInfo map[string][]RetrievalResult `json:"retrieved_info"`
	Plan          *ResearchPlan                `json:"plan"`
	Summary       *SummarizedOutput            `json:"summary"`
	Error         string                       `json:"error,omitempty"`
	Failures      []StepFailure                `json:"failures,omitempty"`
}

// Delta is the partial update a step returns. Only the fields owned by the
// step may be set.
type Delta struct {
	SubQueries    []string
	RetrievedInfo map[string][]RetrievalResult
	Plan          *ResearchPlan
	Summary       *SummarizedOutput
	Failures      []StepFailure
}

// Fatal reports whether any failure in the delta ends the run.
func (d Delta) Fatal() bool {
	for _, f := range d.Failures {
		if f.Fatal {
			return true
		}
	}
	return false
}

// Prompt is a single request to the reasoning service.
type Prompt struct {
	System string
	User   string
}
