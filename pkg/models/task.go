package models

import "time"

// Classification is the workflow family a task belongs to. Classifications
// are persisted as string tokens so the step registry can evolve without
// migrating stored data.
type Classification string

const (
	ClassSelf        Classification = "self"
	ClassSubsidy     Classification = "subsidy"
	ClassDealer      Classification = "dealer"
	ClassOutsourcing Classification = "outsourcing"
	ClassEtc         Classification = "etc"
	ClassAS          Classification = "as"

	// ClassAll is a query value, never a stored classification.
	ClassAll Classification = "all"
)

// AllClassifications lists the stored classifications in registry order.
var AllClassifications = []Classification{
	ClassSelf,
	ClassSubsidy,
	ClassDealer,
	ClassOutsourcing,
	ClassEtc,
	ClassAS,
}

// Valid reports whether c is one of the stored classifications.
func (c Classification) Valid() bool {
	for _, known := range AllClassifications {
		if c == known {
			return true
		}
	}
	return false
}

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// StepDefinition is one stage of a classification's ordered sequence.
type StepDefinition struct {
	StepID       string `yaml:"step_id" json:"step_id"`
	DisplayLabel string `yaml:"label" json:"label"`
	Ordinal      int    `yaml:"ordinal" json:"ordinal"`
	ColorTag     string `yaml:"color" json:"color"`
}

// BusinessKey links a task to the business account it serves. BusinessID is
// empty for ad-hoc tasks that have no business record.
type BusinessKey struct {
	BusinessID   string `yaml:"business_id,omitempty" json:"business_id,omitempty"`
	BusinessName string `yaml:"business_name" json:"business_name"`
	LocalityName string `yaml:"locality,omitempty" json:"locality,omitempty"`
}

// Assignee is a person responsible for a task.
type Assignee struct {
	PersonID    string `yaml:"person_id" json:"person_id"`
	DisplayName string `yaml:"name" json:"name" validate:"required"`
	OrgName     string `yaml:"org,omitempty" json:"org,omitempty"`
	OrgRole     string `yaml:"role,omitempty" json:"role,omitempty"`
}

// TaskRecord is the persisted task entity. Progress and delay state are never
// stored; see core.TaskView for the derived read model.
type TaskRecord struct {
	ID             string         `yaml:"id" json:"id"`
	Title          string         `yaml:"title" json:"title"`
	Business       BusinessKey    `yaml:"business" json:"business"`
	Classification Classification `yaml:"classification" json:"classification" validate:"required"`
	Step           string         `yaml:"step" json:"step" validate:"required"`
	Priority       Priority       `yaml:"priority" json:"priority" validate:"omitempty,oneof=high medium low"`

	// Assignee is the legacy single-assignee field kept for records written
	// before assignee lists existed.
	Assignee  string     `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	Assignees []Assignee `yaml:"assignees,omitempty" json:"assignees,omitempty" validate:"dive"`

	StartDate  string `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	DueDate    string `yaml:"due_date,omitempty" json:"due_date,omitempty"`
	ReportDate string `yaml:"report_date,omitempty" json:"report_date,omitempty"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Notes       string `yaml:"notes,omitempty" json:"notes,omitempty"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`

	// Version increments on every committed write and backs compare-and-set.
	Version int64 `yaml:"version" json:"version"`
}

// Clone returns a deep copy of the record.
func (t TaskRecord) Clone() TaskRecord {
	out := t
	if t.Assignees != nil {
		out.Assignees = make([]Assignee, len(t.Assignees))
		copy(out.Assignees, t.Assignees)
	}
	return out
}

// Business is the subset of a business account the task engine consumes.
// Category is free text maintained by operators (e.g. "subsidy 2025").
type Business struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Locality string `yaml:"locality,omitempty" json:"locality,omitempty"`
	Category string `yaml:"category" json:"category"`
}
