package research

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind names the category of a step failure.
type ErrorKind string

const (
	KindDeconstruction ErrorKind = "DeconstructionError"
	KindRetrieval      ErrorKind = "RetrievalError"
	KindPlanGeneration ErrorKind = "PlanGenerationError"
	KindSummarization  ErrorKind = "SummarizationError"
	KindInternal       ErrorKind = "InternalError"
)

var (
	ErrDeconstruction = errors.New("deconstruction failed")
	ErrRetrieval      = errors.New("retrieval failed")
	ErrPlanGeneration = errors.New("plan generation failed")
	ErrSummarization  = errors.New("summarization failed")
	ErrInternal       = errors.New("internal orchestration failure")
)

var kindSentinels = map[ErrorKind]error{
	KindDeconstruction: ErrDeconstruction,
	KindRetrieval:      ErrRetrieval,
	KindPlanGeneration: ErrPlanGeneration,
	KindSummarization:  ErrSummarization,
	KindInternal:       ErrInternal,
}

// StepError is the error a step records into the failure trail.
type StepError struct {
	Kind     ErrorKind
	Step     StepName
	SubQuery string
	Err      error
}

func (e *StepError) Error() string {
	if e.SubQuery != "" {
		return fmt.Sprintf("%s: for '%s': %v", e.Kind, e.SubQuery, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind, so callers can write
// errors.Is(err, ErrPlanGeneration).
func (e *StepError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// failure converts the error into a trail entry.
func (e *StepError) failure(fatal bool) StepFailure {
	return StepFailure{
		Step:     e.Step,
		Kind:     e.Kind,
		SubQuery: e.SubQuery,
		Message:  e.Error(),
		Fatal:    fatal,
	}
}

// SchemaValidationError is returned when a structured completion does not
// match its schema.
type SchemaValidationError struct {
	Schema   string
	Problems []string
	Raw      string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("response does not match schema %s: %s", e.Schema, strings.Join(e.Problems, ", "))
}
