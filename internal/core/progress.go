package core

import "github.com/valter-silva-au/opsboard/pkg/models"

// Progress returns the completion percentage of stepID within c's sequence:
// round((ordinal+1)/len*100), half-up. Unknown steps report 0 and the
// terminal step always reports 100.
func (r *StepRegistry) Progress(c models.Classification, stepID string) int {
	step, ok := r.Step(c, stepID)
	if !ok {
		return 0
	}
	return percentOf(step.Ordinal+1, r.Len(c))
}

// percentOf rounds n/total*100 half-up in integer arithmetic.
func percentOf(n, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*n + total) / (2 * total)
}
