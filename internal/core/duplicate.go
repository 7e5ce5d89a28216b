package core

import (
	"strings"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// DuplicateGuard detects a second active task for the same business,
// classification and step. It is advisory: the task store turns a hit into a
// confirmable conflict rather than a hard rejection.
type DuplicateGuard struct {
	registry *StepRegistry
}

// NewDuplicateGuard creates a guard that uses registry to recognise
// terminal (inactive) tasks.
func NewDuplicateGuard(registry *StepRegistry) *DuplicateGuard {
	return &DuplicateGuard{registry: registry}
}

// BusinessIdentity returns the key a task is deduplicated on: the business id
// when present, otherwise the normalised business name.
func BusinessIdentity(key models.BusinessKey) string {
	if id := strings.TrimSpace(key.BusinessID); id != "" {
		return "id:" + id
	}
	name := strings.ToLower(strings.TrimSpace(key.BusinessName))
	if name == "" {
		return ""
	}
	return "name:" + name
}

// WouldDuplicate returns the first existing active task sharing the
// candidate's (business, classification, step). The candidate's own id is
// ignored so updates do not conflict with themselves.
func (g *DuplicateGuard) WouldDuplicate(candidate models.TaskRecord, existing []models.TaskRecord) (*models.TaskRecord, bool) {
	identity := BusinessIdentity(candidate.Business)
	if identity == "" {
		return nil, false
	}
	if g.registry.IsTerminal(candidate.Classification, candidate.Step) {
		return nil, false
	}

	for i := range existing {
		other := &existing[i]
		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}
		if other.Classification != candidate.Classification || other.Step != candidate.Step {
			continue
		}
		if g.registry.IsTerminal(other.Classification, other.Step) {
			continue
		}
		if BusinessIdentity(other.Business) != identity {
			continue
		}
		found := other.Clone()
		return &found, true
	}
	return nil, false
}
