package core

import (
	"strings"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// categoryRule maps a business category containing any of its tokens to a
// classification. Rules are checked in order.
type categoryRule struct {
	class         models.Classification
	tokens        []string // matched case-insensitively
	caseSensitive []string // matched as written
}

var categoryRules = []categoryRule{
	{class: models.ClassSelf, tokens: []string{"self-pay", "self pay", "self-funded", "self funded"}},
	{class: models.ClassSubsidy, tokens: []string{"subsidy", "subsidized"}},
	{class: models.ClassAS, tokens: []string{"after-service", "after service", "a/s"}, caseSensitive: []string{"AS"}},
}

// ClassificationForCategory maps a business's free-text category to the
// classification a task created from that business should use.
func ClassificationForCategory(category string) models.Classification {
	lower := strings.ToLower(category)
	for _, rule := range categoryRules {
		for _, tok := range rule.tokens {
			if strings.Contains(lower, tok) {
				return rule.class
			}
		}
		for _, tok := range rule.caseSensitive {
			if strings.Contains(category, tok) {
				return rule.class
			}
		}
	}
	return models.ClassEtc
}

// NewTaskFromBusiness builds an unsaved task for b at the first step of the
// classification derived from b's category.
func NewTaskFromBusiness(registry *StepRegistry, b models.Business, priority models.Priority) (models.TaskRecord, error) {
	class := ClassificationForCategory(b.Category)
	first, ok := registry.First(class)
	if !ok {
		return models.TaskRecord{}, newTaskError(KindValidation, "create", "", "no steps defined for "+string(class), nil)
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	return models.TaskRecord{
		Title: first.DisplayLabel,
		Business: models.BusinessKey{
			BusinessID:   b.ID,
			BusinessName: b.Name,
			LocalityName: b.Locality,
		},
		Classification: class,
		Step:           first.StepID,
		Priority:       priority,
	}, nil
}
