package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// ErrNoPersister is returned by Save when the engine has no session store.
var ErrNoPersister = errors.New("no session persister configured")

// ResearchEngine drives a run through the research graph. Collaborators are
// shared read-only between runs; every run owns its own ResearchState, so
// one engine may serve concurrent runs.
type ResearchEngine struct {
	Config    Config
	Reasoner  Reasoner
	Searcher  Searcher
	Persister Persister
	Archiver  Archiver
	Splitter  TextSplitter
	Logger    *slog.Logger

	// OnStateUpdate is called after every transition with a copy of the state.
	OnStateUpdate func(state ResearchState, stage Stage)

	overrides map[StepName]Step
}

// Option configures a ResearchEngine.
type Option func(*ResearchEngine)

func WithConfig(cfg Config) Option {
	return func(e *ResearchEngine) { e.Config = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *ResearchEngine) { e.Logger = l }
}

func WithPersister(p Persister) Option {
	return func(e *ResearchEngine) { e.Persister = p }
}

func WithArchiver(a Archiver) Option {
	return func(e *ResearchEngine) { e.Archiver = a }
}

func WithSplitter(s TextSplitter) Option {
	return func(e *ResearchEngine) { e.Splitter = s }
}

// WithStep replaces the executor registered for step.Name().
func WithStep(step Step) Option {
	return func(e *ResearchEngine) { e.overrides[step.Name()] = step }
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(reasoner Reasoner, searcher Searcher, opts ...Option) *ResearchEngine {
	e := &ResearchEngine{
		Config:    DefaultConfig(),
		Reasoner:  reasoner,
		Searcher:  searcher,
		Logger:    slog.Default(),
		overrides: make(map[StepName]Step),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// steps builds the executors for one run, so a logger swapped in between
// runs is picked up.
func (e *ResearchEngine) steps(log *slog.Logger) map[StepName]Step {
	steps := map[StepName]Step{
		StepDeconstruct: &Deconstructor{
			Reasoner:      e.Reasoner,
			MaxSubQueries: e.Config.MaxSubQueries,
			Timeout:       e.Config.StepTimeout,
			Logger:        log,
		},
		StepRetrieve: &Retriever{
			Searcher:    e.Searcher,
			Concurrency: e.Config.RetrievalConcurrency,
			Timeout:     e.Config.StepTimeout,
			Logger:      log,
		},
		StepPlan: &Planner{
			Reasoner: e.Reasoner,
			Timeout:  e.Config.StepTimeout,
			Logger:   log,
		},
		StepSummarize: &Summarizer{
			Reasoner: e.Reasoner,
			Splitter: e.Splitter,
			Timeout:  e.Config.StepTimeout,
			Logger:   log,
		},
		StepErrorHandler: &errorHandler{Logger: log},
	}
	for name, step := range e.overrides {
		steps[name] = step
	}
	return steps
}

// Run executes the research graph for query and returns the final state. It
// never fails: every problem ends up in the state's failure trail.
func (e *ResearchEngine) Run(ctx context.Context, query string) ResearchState {
	log := logger(e.Logger).With("query", query)
	steps := e.steps(log)

	maxTransitions := e.Config.MaxTransitions
	if maxTransitions <= 0 {
		maxTransitions = DefaultConfig().MaxTransitions
	}

	state := NewState(query)
	stage := StagePending
	log.Info("Starting research run")

	for transitions := 0; ; transitions++ {
		next := Route(stage)
		if next == StepTerminate {
			break
		}
		if transitions >= maxTransitions {
			se := &StepError{Kind: KindInternal, Step: next, Err: fmt.Errorf("stopped after %d transitions", maxTransitions)}
			state.appendFailures(se.failure(true))
			log.Error("Transition limit reached", "stage", stage.String(), "limit", maxTransitions)
			break
		}

		batch := []StepName{next}
		if !e.Config.SequentialSynthesis {
			batch = Ready(stage)
		}
		log.Debug("Routing", "stage", stage.String(), "steps", batch)

		state, stage = e.transition(ctx, steps, state, stage, batch)

		if e.OnStateUpdate != nil {
			e.OnStateUpdate(state.Clone(), stage)
		}
	}

	log.Info("Research run finished", "failures", len(state.Failures))
	return state
}

// transition runs a batch of independent steps against the same snapshot,
// then merges their deltas in batch order.
func (e *ResearchEngine) transition(ctx context.Context, steps map[StepName]Step, state ResearchState, stage Stage, batch []StepName) (ResearchState, Stage) {
	deltas := make([]Delta, len(batch))
	if len(batch) == 1 {
		deltas[0] = e.runStep(ctx, steps[batch[0]], batch[0], state.Clone())
	} else {
		var g errgroup.Group
		for i, name := range batch {
			snapshot := state.Clone()
			g.Go(func() error {
				deltas[i] = e.runStep(ctx, steps[name], name, snapshot)
				return nil
			})
		}
		_ = g.Wait()
	}

	// Once a step of the batch errors, the rest still merge their deltas but
	// no longer move the stage.
	errored := false
	for i, name := range batch {
		fatal := deltas[i].Fatal()
		next, err := state.Apply(name, deltas[i])
		if err != nil {
			se := &StepError{Kind: KindInternal, Step: name, Err: err}
			next.appendFailures(se.failure(true))
			fatal = true
		}
		state = next
		if !errored {
			stage = Advance(stage, name, fatal)
			errored = stage == StageErrored
		}
	}
	return state, stage
}

// runStep executes one step and turns a panic or a missing executor into a
// fatal failure.
func (e *ResearchEngine) runStep(ctx context.Context, step Step, name StepName, snapshot ResearchState) (d Delta) {
	defer func() {
		if p := recover(); p != nil {
			logger(e.Logger).Error("Step panicked", "step", name, "panic", p, "stack", string(debug.Stack()))
			se := &StepError{Kind: KindInternal, Step: name, Err: fmt.Errorf("step panicked: %v", p)}
			d = Delta{Failures: []StepFailure{se.failure(true)}}
		}
	}()

	if step == nil {
		se := &StepError{Kind: KindInternal, Step: name, Err: errors.New("no executor registered")}
		return Delta{Failures: []StepFailure{se.failure(true)}}
	}
	return step.Run(ctx, snapshot)
}

// Save persists a terminal state. It is attempted even when the run failed
// and even when ctx is already cancelled.
func (e *ResearchEngine) Save(ctx context.Context, state ResearchState) (string, error) {
	if e.Persister == nil {
		return "", ErrNoPersister
	}
	saveCtx := context.WithoutCancel(ctx)
	id, err := e.Persister.Save(saveCtx, state)
	if err != nil {
		logger(e.Logger).Error("Failed to save session", "error", err)
		return "", err
	}
	logger(e.Logger).Info("Session saved", "session_id", id)

	if e.Archiver != nil {
		if err := e.Archiver.Archive(saveCtx, id, state); err != nil {
			logger(e.Logger).Warn("Failed to archive session", "session_id", id, "error", err)
		}
	}
	return id, nil
}

// RunAndSave runs the graph and saves the final state. The returned error is
// only ever a persistence error; the state is valid either way.
func (e *ResearchEngine) RunAndSave(ctx context.Context, query string) (ResearchState, string, error) {
	state := e.Run(ctx, query)
	id, err := e.Save(ctx, state)
	return state, id, err
}

// errorHandler absorbs the state of a failed run before termination.
type errorHandler struct {
	Logger *slog.Logger
}

func (h *errorHandler) Name() StepName { return StepErrorHandler }

func (h *errorHandler) Run(_ context.Context, state ResearchState) Delta {
	logger(h.Logger).Warn("Run ended with a fatal error", "error", state.Error, "failures", len(state.Failures))
	return Delta{}
}
