// Package trip implements the trip-planning workflows: a fixed stage
// pipeline executed in order against one shared state record, with
// support for suspending mid-run to collect structured human input and
// resuming later from exactly that point.
//
// Suspension is explicit state serialization, not concurrency: the run's
// state and the index of the next stage are persisted keyed by thread id,
// control returns to the caller with a question spec, and a later resume
// request rehydrates the state and continues through the remaining
// stages. Stage failures never abort a run — they are recorded on the
// state and later stages substitute defaults for missing upstream fields.
package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Run statuses returned to callers.
const (
	StatusAwaitingInput = "awaiting_input"
	StatusComplete      = "complete"
)

// Suspension is returned by a stage to pause the workflow. Prompt is the
// structured question set handed back to the caller.
type Suspension struct {
	Prompt map[string]any
}

func (s *Suspension) Error() string { return "workflow suspended for human input" }

// errorRecorder lets the engine record stage failures on any workflow
// state without knowing its concrete type.
type errorRecorder interface {
	RecordError(stage string, err error)
}

// Stage is one step of a workflow. Run mutates the shared state in
// place; returning *Suspension pauses the run, any other error is
// recorded and execution continues.
type Stage[S errorRecorder] struct {
	Name string
	Run  func(ctx context.Context, state S) error
}

// Outcome is the result of driving a workflow until it suspends or
// finishes.
type Outcome[S errorRecorder] struct {
	Status string
	Prompt map[string]any
	State  S
}

// Engine drives a stage list with suspend/resume persistence.
type Engine[S errorRecorder] struct {
	logger *slog.Logger
	stages []Stage[S]
	store  *RunStore

	// applyInput merges the human answers into the state when a run
	// resumes.
	applyInput func(state S, input map[string]any)
}

// NewEngine creates a workflow engine over a fixed stage list.
func NewEngine[S errorRecorder](logger *slog.Logger, stages []Stage[S], store *RunStore, applyInput func(S, map[string]any)) *Engine[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine[S]{
		logger:     logger,
		stages:     stages,
		store:      store,
		applyInput: applyInput,
	}
}

// Start runs stages from the beginning until suspension or completion.
func (e *Engine[S]) Start(ctx context.Context, threadID string, state S) (*Outcome[S], error) {
	return e.run(ctx, threadID, state, 0)
}

// Resume rehydrates a suspended run, merges the human input, and runs
// the remaining stages to completion.
func (e *Engine[S]) Resume(ctx context.Context, threadID string, state S, input map[string]any) (*Outcome[S], error) {
	run, err := e.store.Load(threadID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", threadID, err)
	}
	if err := json.Unmarshal(run.State, state); err != nil {
		return nil, fmt.Errorf("resume %s: decode state: %w", threadID, err)
	}
	if e.applyInput != nil {
		e.applyInput(state, input)
	}
	return e.run(ctx, threadID, state, run.NextStage)
}

func (e *Engine[S]) run(ctx context.Context, threadID string, state S, from int) (*Outcome[S], error) {
	for i := from; i < len(e.stages); i++ {
		stage := e.stages[i]
		e.logger.Info("workflow stage", "thread", threadID, "stage", stage.Name)

		err := stage.Run(ctx, state)
		if err == nil {
			continue
		}

		if susp, ok := err.(*Suspension); ok {
			if err := e.persist(threadID, state, i+1); err != nil {
				return nil, err
			}
			e.logger.Info("workflow suspended", "thread", threadID, "after", stage.Name)
			return &Outcome[S]{Status: StatusAwaitingInput, Prompt: susp.Prompt, State: state}, nil
		}

		// Stage failures are carried in the state; later stages fill in
		// defaults for whatever this one could not produce.
		e.logger.Warn("workflow stage failed", "thread", threadID, "stage", stage.Name, "error", err)
		state.RecordError(stage.Name, err)
	}

	if err := e.persist(threadID, state, len(e.stages)); err != nil {
		e.logger.Warn("workflow final persist failed", "thread", threadID, "error", err)
	}
	e.logger.Info("workflow complete", "thread", threadID)
	return &Outcome[S]{Status: StatusComplete, State: state}, nil
}

func (e *Engine[S]) persist(threadID string, state S, nextStage int) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("persist %s: %w", threadID, err)
	}
	return e.store.Save(&Run{ThreadID: threadID, NextStage: nextStage, State: doc})
}
