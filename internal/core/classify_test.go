package core

import (
	"testing"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

func TestClassificationForCategory(t *testing.T) {
	tests := []struct {
		category string
		want     models.Classification
	}{
		{"Self-Pay residential", models.ClassSelf},
		{"self funded", models.ClassSelf},
		{"Subsidy 2026", models.ClassSubsidy},
		{"municipal subsidized", models.ClassSubsidy},
		{"After-Service contract", models.ClassAS},
		{"AS only", models.ClassAS},
		{"a/s", models.ClassAS},
		{"was", models.ClassEtc},
		{"", models.ClassEtc},
		{"wholesale", models.ClassEtc},
	}
	for _, tt := range tests {
		if got := ClassificationForCategory(tt.category); got != tt.want {
			t.Errorf("ClassificationForCategory(%q) = %q, want %q", tt.category, got, tt.want)
		}
	}
}

func TestNewTaskFromBusiness(t *testing.T) {
	reg := MustStepRegistry()
	b := models.Business{ID: "b-9", Name: "Gamma Mills", Locality: "Eastside", Category: "subsidy"}

	task, err := NewTaskFromBusiness(reg, b, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Classification != models.ClassSubsidy || task.Step != "needs_check" {
		t.Errorf("task = %s/%s, want subsidy/needs_check", task.Classification, task.Step)
	}
	if task.Title != labelNeedsVerification {
		t.Errorf("Title = %q, want %q", task.Title, labelNeedsVerification)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("Priority = %q, want medium", task.Priority)
	}
	if task.Business.BusinessID != "b-9" || task.Business.LocalityName != "Eastside" {
		t.Errorf("Business = %+v", task.Business)
	}
	if err := NewTaskValidator(reg).Validate("create", task); err != nil {
		t.Errorf("task from business does not validate: %v", err)
	}
}
