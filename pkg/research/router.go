package research

// StepName identifies a node of the research graph.
type StepName string

const (
	StepDeconstruct  StepName = "deconstruct"
	StepRetrieve     StepName = "retrieve"
	StepPlan         StepName = "plan"
	StepSummarize    StepName = "summarize"
	StepErrorHandler StepName = "error_handler"
	StepTerminate    StepName = "terminate"
)

// Stage is the explicit progress tag of a run. It is recomputed once per
// transition by Advance and is the only input of the router.
type Stage int

const (
	StagePending Stage = iota
	StageDeconstructed
	StageRetrieved
	// StagePlanned means Plan was attempted and Summarize was not.
	StagePlanned
	// StageSummarized means Summarize was attempted and Plan was not.
	StageSummarized
	StageErrored
	StageDone
)

var stageNames = map[Stage]string{
	StagePending:       "pending",
	StageDeconstructed: "deconstructed",
	StageRetrieved:     "retrieved",
	StagePlanned:       "planned",
	StageSummarized:    "summarized",
	StageErrored:       "errored",
	StageDone:          "done",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further step will run.
func (s Stage) Terminal() bool {
	return s == StageDone
}

// Route returns the next step for a stage. The graph is
// deconstruct -> retrieve -> (plan, summarize) -> terminate, with the error
// handler reachable from any stage through StageErrored.
func Route(stage Stage) StepName {
	switch stage {
	case StagePending:
		return StepDeconstruct
	case StageDeconstructed:
		return StepRetrieve
	case StageRetrieved, StageSummarized:
		return StepPlan
	case StagePlanned:
		return StepSummarize
	case StageErrored:
		return StepErrorHandler
	default:
		return StepTerminate
	}
}

// Ready returns every step that may run from a stage. Plan and Summarize
// both only read retrieved_info, so both are ready once retrieval is done.
func Ready(stage Stage) []StepName {
	if stage == StageRetrieved {
		return []StepName{StepPlan, StepSummarize}
	}
	return []StepName{Route(stage)}
}

// Advance computes the stage reached after step ran from stage. A fatal
// failure always leads to StageErrored, except from the error handler
// itself, which always finishes the run.
func Advance(stage Stage, step StepName, fatal bool) Stage {
	if step == StepErrorHandler || step == StepTerminate {
		return StageDone
	}
	if fatal {
		return StageErrored
	}
	switch step {
	case StepDeconstruct:
		return StageDeconstructed
	case StepRetrieve:
		return StageRetrieved
	case StepPlan:
		if stage == StageSummarized {
			return StageDone
		}
		return StagePlanned
	case StepSummarize:
		if stage == StagePlanned {
			return StageDone
		}
		return StageSummarized
	}
	return StageErrored
}
