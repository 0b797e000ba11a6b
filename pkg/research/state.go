package research

import (
	"fmt"
	"slices"
	"strings"
)

// errorSeparator joins messages in ResearchState.Error.
const errorSeparator = "; "

// NewState returns the initial state of a run.
func NewState(query string) ResearchState {
	return ResearchState{OriginalQuery: query}
}

// Clone returns a deep copy, so a step can never mutate the engine's state.
func (s ResearchState) Clone() ResearchState {
	out := s
	out.SubQueries = cloneStrings(s.SubQueries)
	out.RetrievedInfo = cloneRetrieved(s.RetrievedInfo)
	if s.Plan != nil {
		p := ResearchPlan{
			Steps:              cloneStrings(s.Plan.Steps),
			SynthesisQuestions: cloneStrings(s.Plan.SynthesisQuestions),
		}
		out.Plan = &p
	}
	if s.Summary != nil {
		sum := SummarizedOutput{
			SummaryText: s.Summary.SummaryText,
			KeyPoints:   cloneStrings(s.Summary.KeyPoints),
		}
		out.Summary = &sum
	}
	if s.Failures != nil {
		out.Failures = slices.Clone(s.Failures)
	}
	return out
}

func cloneRetrieved(in map[string][]RetrievalResult) map[string][]RetrievalResult {
	if in == nil {
		return nil
	}
	out := make(map[string][]RetrievalResult, len(in))
	for k, v := range in {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = slices.Clone(v)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return slices.Clone(in)
}

// Apply merges a step's delta into a copy of the state. Failures are always
// appended. A write to a field the step does not own, or to a field that is
// already set, is dropped and reported as an error.
func (s ResearchState) Apply(step StepName, d Delta) (ResearchState, error) {
	next := s.Clone()
	next.appendFailures(d.Failures...)

	var violations []string
	check := func(field string, owner StepName, set, alreadySet bool) bool {
		if !set {
			return false
		}
		if step != owner {
			violations = append(violations, fmt.Sprintf("%s may not write %s", step, field))
			return false
		}
		if alreadySet {
			violations = append(violations, fmt.Sprintf("%s is already set", field))
			return false
		}
		return true
	}

	if check("sub_queries", StepDeconstruct, d.SubQueries != nil, next.SubQueries != nil) {
		next.SubQueries = cloneStrings(d.SubQueries)
	}
	if check("retrieved_info", StepRetrieve, d.RetrievedInfo != nil, next.RetrievedInfo != nil) {
		next.RetrievedInfo = cloneRetrieved(d.RetrievedInfo)
	}
	if check("plan", StepPlan, d.Plan != nil, next.Plan != nil) {
		next.Plan = &ResearchPlan{
			Steps:              cloneStrings(d.Plan.Steps),
			SynthesisQuestions: cloneStrings(d.Plan.SynthesisQuestions),
		}
	}
	if check("summary", StepSummarize, d.Summary != nil, next.Summary != nil) {
		next.Summary = &SummarizedOutput{
			SummaryText: d.Summary.SummaryText,
			KeyPoints:   cloneStrings(d.Summary.KeyPoints),
		}
	}

	if len(violations) > 0 {
		return next, fmt.Errorf("invalid state update: %s", strings.Join(violations, ", "))
	}
	return next, nil
}

// appendFailures extends the failure trail and the human-readable error.
func (s *ResearchState) appendFailures(failures ...StepFailure) {
	for _, f := range failures {
		s.Failures = append(s.Failures, f)
		if s.Error == "" {
			s.Error = f.Message
		} else {
			s.Error = s.Error + errorSeparator + f.Message
		}
	}
}

// HasResults reports whether at least one sub-query returned a result.
func (s ResearchState) HasResults() bool {
	for _, results := range s.RetrievedInfo {
		if len(results) > 0 {
			return true
		}
	}
	return false
}

// FailuresOf returns the trail entries of the given kind.
func (s ResearchState) FailuresOf(kind ErrorKind) []StepFailure {
	var out []StepFailure
	for _, f := range s.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
