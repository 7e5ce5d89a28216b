package core

import (
	"time"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// TaskView is a task record decorated with metrics derived at read time.
// Two views of the same record taken at different times may disagree.
type TaskView struct {
	models.TaskRecord

	StepLabel   string     `json:"step_label"`
	StepColor   string     `json:"step_color"`
	StepOrdinal int        `json:"step_ordinal"`
	Progress    int        `json:"progress"`
	Delay       DelayState `json:"delay"`
}

// Completed reports whether the task sits at its terminal step.
func (v TaskView) Completed() bool {
	return v.Progress == 100
}

// ViewBuilder derives TaskViews from records.
type ViewBuilder struct {
	registry   *StepRegistry
	classifier *DelayClassifier
}

// NewViewBuilder creates a ViewBuilder.
func NewViewBuilder(registry *StepRegistry, classifier *DelayClassifier) *ViewBuilder {
	return &ViewBuilder{registry: registry, classifier: classifier}
}

// Registry returns the registry the builder resolves steps against.
func (b *ViewBuilder) Registry() *StepRegistry {
	return b.registry
}

// View decorates a single record as of now.
func (b *ViewBuilder) View(t models.TaskRecord, now time.Time) TaskView {
	v := TaskView{
		TaskRecord:  t.Clone(),
		StepLabel:   b.registry.LabelFor(t.Classification, t.Step),
		StepOrdinal: -1,
		Progress:    b.registry.Progress(t.Classification, t.Step),
		Delay:       b.classifier.Classify(t.Classification, t.StartDate, t.DueDate, now),
	}
	if step, ok := b.registry.Step(t.Classification, t.Step); ok {
		v.StepColor = step.ColorTag
		v.StepOrdinal = step.Ordinal
	}
	return v
}

// Views decorates records in order.
func (b *ViewBuilder) Views(tasks []models.TaskRecord, now time.Time) []TaskView {
	out := make([]TaskView, len(tasks))
	for i, t := range tasks {
		out[i] = b.View(t, now)
	}
	return out
}
