package core

import (
	"strings"
	"testing"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

func TestNewStepRegistry_SequenceLengths(t *testing.T) {
	reg := MustStepRegistry()

	want := map[models.Classification]int{
		models.ClassSelf:        12,
		models.ClassSubsidy:     27,
		models.ClassDealer:      7,
		models.ClassOutsourcing: 9,
		models.ClassEtc:         2,
		models.ClassAS:          5,
	}
	for c, n := range want {
		if got := reg.Len(c); got != n {
			t.Errorf("Len(%s) = %d, want %d", c, got, n)
		}
	}
}

func TestNewStepRegistry_OrdinalsContiguous(t *testing.T) {
	reg := MustStepRegistry()
	for _, c := range reg.Classifications() {
		for i, s := range reg.StepsFor(c) {
			if s.Ordinal != i {
				t.Errorf("%s step %q ordinal = %d, want %d", c, s.StepID, s.Ordinal, i)
			}
			if s.DisplayLabel == "" {
				t.Errorf("%s step %q has no label", c, s.StepID)
			}
		}
	}
}

func TestNewStepRegistry_RejectsDuplicateStepIDs(t *testing.T) {
	table := map[models.Classification][]stepSpec{
		models.ClassEtc: {{"a", "A", ""}, {"a", "Again", ""}},
	}
	_, err := newStepRegistry([]models.Classification{models.ClassEtc}, table)
	if err == nil {
		t.Fatal("expected error for duplicate step id")
	}
	if !strings.Contains(err.Error(), "twice") {
		t.Errorf("error = %q, want mention of duplicate", err)
	}
}

func TestNewStepRegistry_RejectsEmptySequence(t *testing.T) {
	table := map[models.Classification][]stepSpec{models.ClassEtc: nil}
	if _, err := newStepRegistry([]models.Classification{models.ClassEtc}, table); err == nil {
		t.Fatal("expected error for empty sequence")
	}
}

func TestStepsFor_ReturnsCopy(t *testing.T) {
	reg := MustStepRegistry()
	steps := reg.StepsFor(models.ClassEtc)
	steps[0].DisplayLabel = "mutated"

	again := reg.StepsFor(models.ClassEtc)
	if again[0].DisplayLabel == "mutated" {
		t.Error("StepsFor exposed internal state")
	}
}

func TestStepsFor_UnknownClassification(t *testing.T) {
	reg := MustStepRegistry()
	if got := reg.StepsFor("bogus"); len(got) != 0 {
		t.Errorf("StepsFor(bogus) = %v, want empty", got)
	}
}

func TestFirstAndTerminal(t *testing.T) {
	reg := MustStepRegistry()

	first, ok := reg.First(models.ClassAS)
	if !ok || first.StepID != "as_received" {
		t.Errorf("First(as) = %q, %v; want as_received", first.StepID, ok)
	}
	last, ok := reg.Terminal(models.ClassDealer)
	if !ok || last.StepID != "dealer_done" {
		t.Errorf("Terminal(dealer) = %q, %v; want dealer_done", last.StepID, ok)
	}
	if !reg.IsTerminal(models.ClassSelf, "completed") {
		t.Error("IsTerminal(self, completed) = false, want true")
	}
	if reg.IsTerminal(models.ClassSelf, "permit") {
		t.Error("IsTerminal(self, permit) = true, want false")
	}
	if reg.IsTerminal(models.ClassSelf, "nope") {
		t.Error("IsTerminal on unknown step = true, want false")
	}
}

func TestLabelFor(t *testing.T) {
	reg := MustStepRegistry()

	tests := []struct {
		name   string
		class  models.Classification
		stepID string
		want   string
	}{
		{"own sequence", models.ClassSelf, "permit", "Permit Application"},
		{"other sequence", models.ClassSelf, "as_parts_wait", "Awaiting Parts"},
		{"unknown classification falls back", "bogus", "site_survey", "Site Survey"},
		{"synthesized underscores", models.ClassEtc, "waiting_on_customer", "Waiting On Customer"},
		{"synthesized mixed separators", models.ClassEtc, "re-check.docs", "Re Check Docs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reg.LabelFor(tt.class, tt.stepID); got != tt.want {
				t.Errorf("LabelFor(%s, %q) = %q, want %q", tt.class, tt.stepID, got, tt.want)
			}
		})
	}
}

func TestLabelFor_EmptyStepNeverFails(t *testing.T) {
	reg := MustStepRegistry()
	_ = reg.LabelFor(models.ClassSelf, "")
}

func TestSharedLabelsAcrossClassifications(t *testing.T) {
	reg := MustStepRegistry()
	for _, c := range reg.Classifications() {
		first, _ := reg.First(c)
		if first.DisplayLabel != labelNeedsVerification {
			t.Errorf("First(%s) label = %q, want %q", c, first.DisplayLabel, labelNeedsVerification)
		}
		last, _ := reg.Terminal(c)
		if last.DisplayLabel != labelCompleted {
			t.Errorf("Terminal(%s) label = %q, want %q", c, last.DisplayLabel, labelCompleted)
		}
	}
}
