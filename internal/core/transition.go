package core

import (
	"fmt"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// AdvanceResult describes the step a task moves to.
type AdvanceResult struct {
	PreviousStepID string `json:"previous_step_id"`
	NewStepID      string `json:"new_step_id"`
	NewLabel       string `json:"new_label"`
	NewProgress    int    `json:"new_progress"`
}

// TransitionEngine moves tasks along their classification's sequence.
type TransitionEngine struct {
	registry *StepRegistry
}

// NewTransitionEngine creates a TransitionEngine over registry.
func NewTransitionEngine(registry *StepRegistry) *TransitionEngine {
	return &TransitionEngine{registry: registry}
}

// Next computes the step after task's current one. It does not mutate task.
func (e *TransitionEngine) Next(task models.TaskRecord) (AdvanceResult, error) {
	current, ok := e.registry.Step(task.Classification, task.Step)
	if !ok {
		return AdvanceResult{}, newTaskError(KindValidation, "advance", task.ID,
			fmt.Sprintf("step %q is not part of the %s sequence", task.Step, task.Classification), nil)
	}
	next, ok := e.registry.StepAt(task.Classification, current.Ordinal+1)
	if !ok {
		return AdvanceResult{}, newTaskError(KindAlreadyTerminal, "advance", task.ID, "", nil)
	}
	return AdvanceResult{
		PreviousStepID: current.StepID,
		NewStepID:      next.StepID,
		NewLabel:       next.DisplayLabel,
		NewProgress:    e.registry.Progress(task.Classification, next.StepID),
	}, nil
}

// Advance returns a copy of task moved to its next step.
func (e *TransitionEngine) Advance(task models.TaskRecord) (models.TaskRecord, AdvanceResult, error) {
	res, err := e.Next(task)
	if err != nil {
		return models.TaskRecord{}, AdvanceResult{}, err
	}
	out := task.Clone()
	out.Step = res.NewStepID
	return out, res, nil
}
