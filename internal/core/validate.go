package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// TaskValidator rejects malformed task records before any store call.
type TaskValidator struct {
	registry *StepRegistry
	validate *validator.Validate
}

// NewTaskValidator creates a validator that checks steps against registry.
func NewTaskValidator(registry *StepRegistry) *TaskValidator {
	return &TaskValidator{
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate checks field constraints, that the step belongs to the task's own
// classification, and that non-ad-hoc tasks are linked to a business.
func (v *TaskValidator) Validate(op string, t models.TaskRecord) error {
	var problems []string

	if err := v.validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return newTaskError(KindValidation, op, t.ID, err.Error(), err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	if t.Classification != "" && !t.Classification.Valid() {
		problems = append(problems, fmt.Sprintf("unknown classification %q", t.Classification))
	} else if t.Classification != "" && t.Step != "" {
		if _, ok := v.registry.Step(t.Classification, t.Step); !ok {
			problems = append(problems, fmt.Sprintf("step %q is not part of the %s sequence", t.Step, t.Classification))
		}
	}

	if t.Classification != models.ClassEtc && t.Classification != "" &&
		strings.TrimSpace(t.Business.BusinessID) == "" {
		problems = append(problems, fmt.Sprintf("%s tasks must be linked to a business", t.Classification))
	}
	if t.Classification == models.ClassEtc && BusinessIdentity(t.Business) == "" && strings.TrimSpace(t.Description) == "" {
		problems = append(problems, "ad-hoc tasks need a business name or a description")
	}

	if len(problems) > 0 {
		return newTaskError(KindValidation, op, t.ID, strings.Join(problems, "; "), nil)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", strings.ToLower(fe.Field()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", strings.ToLower(fe.Field()), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag())
	}
}
