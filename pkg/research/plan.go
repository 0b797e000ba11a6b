package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Planner derives a structured research plan from the query, the
// sub-queries and whatever retrieval produced, even if that is nothing.
type Planner struct {
	Reasoner Reasoner
	Timeout  time.Duration
	Logger   *slog.Logger
}

func (p *Planner) Name() StepName { return StepPlan }

func (p *Planner) Run(ctx context.Context, state ResearchState) Delta {
	if state.RetrievedInfo == nil {
		return p.fail(errors.New("retrieved information is missing"))
	}

	input := fmt.Sprintf("Main Query: %s\n\nDeconstructed Queries:\n- %s\n\nRetrieved Information:\n%s\nCreate a research plan.",
		state.OriginalQuery,
		strings.Join(state.SubQueries, "\n- "),
		renderRetrieved(state.SubQueries, state.RetrievedInfo))

	var resp ResearchPlan
	callCtx, cancel := withTimeout(ctx, p.Timeout)
	defer cancel()
	err := p.Reasoner.CompleteStructured(callCtx, Prompt{
		System: planSystemPrompt,
		User:   input,
	}, PlanSchema, &resp)
	if err != nil {
		return p.fail(fmt.Errorf("failed to create plan: %w", err))
	}

	if resp.SynthesisQuestions == nil {
		resp.SynthesisQuestions = []string{}
	}
	logger(p.Logger).Info("Plan created", "steps", len(resp.Steps), "questions", len(resp.SynthesisQuestions))
	return Delta{Plan: &resp}
}

func (p *Planner) fail(err error) Delta {
	se := &StepError{Kind: KindPlanGeneration, Step: StepPlan, Err: err}
	logger(p.Logger).Error("Planning failed", "error", err)
	return Delta{Failures: []StepFailure{se.failure(false)}}
}
