package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// stepSpec is a row of the static sequence table. Ordinals are assigned from
// the row position when the registry is built.
type stepSpec struct {
	id    string
	label string
	color string
}

// Shared labels are what the cross-classification board merges on.
const (
	labelNeedsVerification = "Needs Verification"
	labelCompleted         = "Completed"
)

var defaultSequences = map[models.Classification][]stepSpec{
	models.ClassSelf: {
		{"needs_check", labelNeedsVerification, "gray"},
		{"consult", "Consultation", "sky"},
		{"site_survey", "Site Survey", "sky"},
		{"quote", "Quotation", "indigo"},
		{"contract", "Contract Signed", "indigo"},
		{"permit", "Permit Application", "amber"},
		{"material_order", "Material Order", "amber"},
		{"install_scheduled", "Installation Scheduled", "orange"},
		{"installing", "Installing", "orange"},
		{"inspection", "Inspection", "violet"},
		{"grid_connect", "Grid Connection", "teal"},
		{"completed", labelCompleted, "green"},
	},
	models.ClassSubsidy: {
		{"needs_check", labelNeedsVerification, "gray"},
		{"consult", "Consultation", "sky"},
		{"site_survey", "Site Survey", "sky"},
		{"eligibility_check", "Eligibility Check", "cyan"},
		{"application_docs", "Application Documents", "cyan"},
		{"application_submitted", "Application Submitted", "blue"},
		{"application_supplement", "Application Supplement", "rose"},
		{"selection_pending", "Selection Pending", "blue"},
		{"selected", "Selected", "indigo"},
		{"contract", "Contract Signed", "indigo"},
		{"permit", "Permit Application", "amber"},
		{"permit_supplement", "Permit Supplement", "rose"},
		{"material_order", "Material Order", "amber"},
		{"install_scheduled", "Installation Scheduled", "orange"},
		{"installing", "Installing", "orange"},
		{"install_report", "Installation Report", "violet"},
		{"install_report_supplement", "Installation Report Supplement", "rose"},
		{"inspection", "Inspection", "violet"},
		{"inspection_supplement", "Inspection Supplement", "rose"},
		{"grid_connect", "Grid Connection", "teal"},
		{"completion_docs", "Completion Documents", "teal"},
		{"completion_supplement", "Completion Supplement", "rose"},
		{"subsidy_claim", "Subsidy Claim", "lime"},
		{"subsidy_claim_supplement", "Subsidy Claim Supplement", "rose"},
		{"subsidy_paid", "Subsidy Paid", "lime"},
		{"settlement", "Settlement", "emerald"},
		{"completed", labelCompleted, "green"},
	},
	models.ClassDealer: {
		{"dealer_intake", labelNeedsVerification, "slate"},
		{"order_received", "Order Received", "sky"},
		{"stock_check", "Stock Check", "amber"},
		{"shipping", "Shipping", "orange"},
		{"delivered", "Delivered", "teal"},
		{"invoiced", "Invoiced", "lime"},
		{"dealer_done", labelCompleted, "emerald"},
	},
	models.ClassOutsourcing: {
		{"needs_check", labelNeedsVerification, "gray"},
		{"partner_assigned", "Partner Assigned", "sky"},
		{"site_survey", "Site Survey", "sky"},
		{"install_scheduled", "Installation Scheduled", "orange"},
		{"installing", "Installing", "orange"},
		{"partner_report", "Partner Report", "violet"},
		{"inspection", "Inspection", "violet"},
		{"settlement", "Settlement", "emerald"},
		{"completed", labelCompleted, "green"},
	},
	models.ClassEtc: {
		{"etc_open", labelNeedsVerification, "zinc"},
		{"etc_done", labelCompleted, "stone"},
	},
	models.ClassAS: {
		{"as_received", labelNeedsVerification, "red"},
		{"as_visit_scheduled", "Visit Scheduled", "orange"},
		{"as_parts_wait", "Awaiting Parts", "amber"},
		{"as_repairing", "Repairing", "violet"},
		{"as_done", labelCompleted, "green"},
	},
}

// StepRegistry is the immutable table of step sequences, one per
// classification. Build it once with NewStepRegistry and share it.
type StepRegistry struct {
	order     []models.Classification
	sequences map[models.Classification][]models.StepDefinition
	index     map[models.Classification]map[string]int
}

// NewStepRegistry builds the registry from the built-in sequence table.
func NewStepRegistry() (*StepRegistry, error) {
	return newStepRegistry(models.AllClassifications, defaultSequences)
}

// MustStepRegistry is NewStepRegistry for process start-up and tests.
func MustStepRegistry() *StepRegistry {
	reg, err := NewStepRegistry()
	if err != nil {
		panic(err)
	}
	return reg
}

func newStepRegistry(order []models.Classification, table map[models.Classification][]stepSpec) (*StepRegistry, error) {
	reg := &StepRegistry{
		order:     append([]models.Classification(nil), order...),
		sequences: make(map[models.Classification][]models.StepDefinition, len(order)),
		index:     make(map[models.Classification]map[string]int, len(order)),
	}

	for _, c := range order {
		specs, ok := table[c]
		if !ok || len(specs) == 0 {
			return nil, fmt.Errorf("building step registry: classification %q has no steps", c)
		}
		steps := make([]models.StepDefinition, len(specs))
		idx := make(map[string]int, len(specs))
		for i, s := range specs {
			if s.id == "" || s.label == "" {
				return nil, fmt.Errorf("building step registry: %s step %d has an empty id or label", c, i)
			}
			if _, dup := idx[s.id]; dup {
				return nil, fmt.Errorf("building step registry: %s defines step %q twice", c, s.id)
			}
			idx[s.id] = i
			steps[i] = models.StepDefinition{
				StepID:       s.id,
				DisplayLabel: s.label,
				Ordinal:      i,
				ColorTag:     s.color,
			}
		}
		reg.sequences[c] = steps
		reg.index[c] = idx
	}

	return reg, nil
}

// Classifications returns the classifications in registry order.
func (r *StepRegistry) Classifications() []models.Classification {
	return append([]models.Classification(nil), r.order...)
}

// StepsFor returns a copy of the ordered sequence for c, or nil if c is unknown.
func (r *StepRegistry) StepsFor(c models.Classification) []models.StepDefinition {
	steps, ok := r.sequences[c]
	if !ok {
		return nil
	}
	return append([]models.StepDefinition(nil), steps...)
}

// Len returns the number of steps in c's sequence.
func (r *StepRegistry) Len(c models.Classification) int {
	return len(r.sequences[c])
}

// Step looks up stepID in c's own sequence only.
func (r *StepRegistry) Step(c models.Classification, stepID string) (models.StepDefinition, bool) {
	i, ok := r.index[c][stepID]
	if !ok {
		return models.StepDefinition{}, false
	}
	return r.sequences[c][i], true
}

// StepAt returns the step at ordinal in c's sequence.
func (r *StepRegistry) StepAt(c models.Classification, ordinal int) (models.StepDefinition, bool) {
	steps := r.sequences[c]
	if ordinal < 0 || ordinal >= len(steps) {
		return models.StepDefinition{}, false
	}
	return steps[ordinal], true
}

// First returns the intake step of c.
func (r *StepRegistry) First(c models.Classification) (models.StepDefinition, bool) {
	return r.StepAt(c, 0)
}

// Terminal returns the completion step of c.
func (r *StepRegistry) Terminal(c models.Classification) (models.StepDefinition, bool) {
	return r.StepAt(c, len(r.sequences[c])-1)
}

// IsTerminal reports whether stepID is c's completion step.
func (r *StepRegistry) IsTerminal(c models.Classification, stepID string) bool {
	last, ok := r.Terminal(c)
	return ok && last.StepID == stepID
}

// LabelFor resolves a display label for stepID. It prefers c's own sequence,
// then any other sequence defining the id, and finally derives a label from
// the raw id. It never fails.
func (r *StepRegistry) LabelFor(c models.Classification, stepID string) string {
	if s, ok := r.Step(c, stepID); ok {
		return s.DisplayLabel
	}
	for _, other := range r.order {
		if other == c {
			continue
		}
		if s, ok := r.Step(other, stepID); ok {
			return s.DisplayLabel
		}
	}
	return humanizeStepID(stepID)
}

// humanizeStepID turns "install_report-v2" into "Install Report V2".
func humanizeStepID(stepID string) string {
	words := strings.FieldsFunc(stepID, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
