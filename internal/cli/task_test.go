package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

func TestTaskCreate_FromBusiness(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "task", "create", "--business", "b-1", "--assignee", "Kim,Lee", "--due", "2026-12-01")
	if err != nil {
		t.Fatalf("task create: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Created task") {
		t.Errorf("output missing confirmation:\n%s", out)
	}

	tasks := TaskStore.Snapshot()
	if len(tasks) != 1 {
		t.Fatalf("snapshot has %d tasks, want 1", len(tasks))
	}
	got := tasks[0]
	if got.Classification != models.ClassSubsidy {
		t.Errorf("Classification = %q, want subsidy", got.Classification)
	}
	if got.Step != "needs_check" {
		t.Errorf("Step = %q, want needs_check", got.Step)
	}
	if got.Business.BusinessName != "Acme Solar" || got.Business.LocalityName != "Springfield" {
		t.Errorf("Business = %+v", got.Business)
	}
	if len(got.Assignees) != 2 || got.Assignees[1].DisplayName != "Lee" {
		t.Errorf("Assignees = %+v", got.Assignees)
	}
	if got.DueDate != "2026-12-01" {
		t.Errorf("DueDate = %q", got.DueDate)
	}
}

func TestTaskCreate_UnknownBusiness(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "task", "create", "--business", "nope")
	if err == nil {
		t.Fatal("expected error for unknown business")
	}
	if len(TaskStore.Snapshot()) != 0 {
		t.Error("task created despite lookup failure")
	}
}

func TestTaskCreate_AdHoc(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "task", "create", "--class", "etc", "--description", "call back about invoice")
	if err != nil {
		t.Fatalf("task create: %v\n%s", err, out)
	}
	tasks := TaskStore.Snapshot()
	if len(tasks) != 1 || tasks[0].Classification != models.ClassEtc {
		t.Fatalf("snapshot = %+v", tasks)
	}
	if tasks[0].Step != "etc_open" {
		t.Errorf("Step = %q, want first etc step", tasks[0].Step)
	}
}

func TestTaskCreate_ValidationError(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "task", "create", "--class", "self", "--business-name", "No Id Ltd")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if kind, _ := core.KindOf(err); kind != core.KindValidation {
		t.Errorf("kind = %q, want validation (err: %v)", kind, err)
	}
}

func TestTaskCreate_DuplicateNeedsForce(t *testing.T) {
	setupCLI(t)
	existing := seedTask(t, permitTask("b-2", "Brightside Farm"))

	_, err := runCLI(t, "task", "create", "--class", "self", "--step", "permit",
		"--business-id", "b-2", "--business-name", "Brightside Farm")
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if !errors.Is(err, core.ErrDuplicateWorkflowInstance) {
		t.Errorf("err = %v, want duplicate workflow instance", err)
	}
	if !strings.Contains(err.Error(), "--force") {
		t.Errorf("error should hint at --force: %v", err)
	}
	if !strings.Contains(err.Error(), existing.ID) {
		t.Errorf("error should name the conflicting task %s: %v", existing.ID, err)
	}

	_, err = runCLI(t, "task", "create", "--class", "self", "--step", "permit",
		"--business-id", "b-2", "--business-name", "Brightside Farm", "--force")
	if err != nil {
		t.Fatalf("forced create: %v", err)
	}
	if n := len(TaskStore.Snapshot()); n != 2 {
		t.Errorf("snapshot has %d tasks, want 2", n)
	}
}

func TestTaskAdvance(t *testing.T) {
	setupCLI(t)
	task := seedTask(t, permitTask("b-2", "Brightside Farm"))

	out, err := runCLI(t, "task", "advance", task.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !strings.Contains(out, "Permit Application -> Material Order") {
		t.Errorf("output = %q", out)
	}

	got, err := TaskStore.Get(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Step != "material_order" || got.Version != task.Version+1 {
		t.Errorf("after advance: step %q version %d", got.Step, got.Version)
	}
}

func TestTaskAdvance_StaleVersion(t *testing.T) {
	setupCLI(t)
	task := seedTask(t, permitTask("b-2", "Brightside Farm"))
	if _, err := runCLI(t, "task", "advance", task.ID); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, "task", "advance", task.ID, "--version", "1")
	if err == nil {
		t.Fatal("expected version conflict")
	}
	if !errors.Is(err, core.ErrVersionConflict) {
		t.Errorf("err = %v, want version conflict", err)
	}
	got, _ := TaskStore.Get(task.ID)
	if got.Step != "material_order" {
		t.Errorf("Step = %q, stale advance must not apply", got.Step)
	}
}

func TestTaskAdvance_ToCompletion(t *testing.T) {
	setupCLI(t)
	task := seedTask(t, models.TaskRecord{
		Business:       models.BusinessKey{BusinessID: "b-2", BusinessName: "Brightside Farm"},
		Classification: models.ClassSelf,
		Step:           "inspection",
	})

	if _, err := runCLI(t, "task", "advance", task.ID); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "task", "advance", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Task completed.") {
		t.Errorf("output = %q", out)
	}

	_, err = runCLI(t, "task", "advance", task.ID)
	if !errors.Is(err, core.ErrAlreadyTerminal) {
		t.Errorf("err = %v, want already terminal", err)
	}
}

func TestTaskUpdate_OnlyChangedFields(t *testing.T) {
	setupCLI(t)
	task := seedTask(t, permitTask("b-2", "Brightside Farm"))

	if _, err := runCLI(t, "task", "update", task.ID, "--notes", "waiting on council", "--priority", "high"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := TaskStore.Get(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Notes != "waiting on council" || got.Priority != models.PriorityHigh {
		t.Errorf("after update: %+v", got)
	}
	if got.Step != "permit" || got.Title != "Permit Application" {
		t.Errorf("unchanged fields modified: step %q title %q", got.Step, got.Title)
	}
}

func TestTaskUpdate_InvalidStep(t *testing.T) {
	setupCLI(t)
	task := seedTask(t, permitTask("b-2", "Brightside Farm"))

	_, err := runCLI(t, "task", "update", task.ID, "--step", "selection_pending")
	if err == nil {
		t.Fatal("expected error for step from another classification")
	}
	got, _ := TaskStore.Get(task.ID)
	if got.Step != "permit" {
		t.Errorf("Step = %q after rejected update", got.Step)
	}
}

func TestTaskDelete(t *testing.T) {
	setupCLI(t)
	task := seedTask(t, permitTask("b-2", "Brightside Farm"))

	out, err := runCLI(t, "task", "delete", task.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "Deleted task") {
		t.Errorf("output = %q", out)
	}
	if _, err := TaskStore.Get(task.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
}

func TestTaskList_FiltersAndJSON(t *testing.T) {
	setupCLI(t)
	seedTask(t, permitTask("b-2", "Brightside Farm"))
	seedTask(t, models.TaskRecord{
		Business:       models.BusinessKey{BusinessID: "b-1", BusinessName: "Acme Solar", LocalityName: "Springfield"},
		Classification: models.ClassSubsidy,
		Step:           "consult",
	})

	out, err := runCLI(t, "task", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Brightside Farm") || !strings.Contains(out, "Acme Solar") {
		t.Errorf("list missing tasks:\n%s", out)
	}

	out, err = runCLI(t, "task", "list", "--search", "acme, spring", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var page core.PageResult
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("decoding JSON: %v\n%s", err, out)
	}
	if page.Total != 1 || page.Items[0].Business.BusinessName != "Acme Solar" {
		t.Errorf("search result = %+v", page)
	}

	out, err = runCLI(t, "task", "list", "--class", "dealer")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No tasks found.") {
		t.Errorf("output = %q", out)
	}
}

func TestTaskList_Pagination(t *testing.T) {
	setupCLI(t)
	for i := 0; i < 5; i++ {
		seedTask(t, models.TaskRecord{
			Classification: models.ClassEtc,
			Step:           "etc_open",
			Description:    "ad-hoc follow up",
		})
	}

	out, err := runCLI(t, "task", "list", "--page-size", "2", "--page", "3", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var page core.PageResult
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 5 || page.PageCount != 3 || len(page.Items) != 1 {
		t.Errorf("page = total %d count %d items %d", page.Total, page.PageCount, len(page.Items))
	}
}

func TestTaskShow(t *testing.T) {
	setupCLI(t)
	task := seedTask(t, permitTask("b-2", "Brightside Farm"))

	out, err := runCLI(t, "task", "show", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{task.ID, "Brightside Farm", "Permit Application (50%)", "Version:   1"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	_, err = runCLI(t, "task", "show", "missing")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestTaskHistory(t *testing.T) {
	setupCLI(t)
	task := seedTask(t, permitTask("b-2", "Brightside Farm"))
	other := seedTask(t, models.TaskRecord{Classification: models.ClassEtc, Step: "etc_open", Description: "other"})
	if _, err := runCLI(t, "task", "advance", task.ID); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "task", "history", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "task.created") || !strings.Contains(out, "task.advanced") {
		t.Errorf("history missing events:\n%s", out)
	}
	if lines := strings.Count(strings.TrimSpace(out), "\n") + 1; lines != 2 {
		t.Errorf("history has %d lines, want 2 (events of %s excluded):\n%s", lines, other.ID, out)
	}
	if !strings.Contains(out, "advanced permit -> material_order") {
		t.Errorf("history should describe the advance:\n%s", out)
	}

	out, err = runCLI(t, "task", "history", task.ID, "--limit", "1")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "task.created") || !strings.Contains(out, "task.advanced") {
		t.Errorf("--limit 1 should keep only the latest event:\n%s", out)
	}
}

func TestTaskCommands_NilStore(t *testing.T) {
	setupCLI(t)
	TaskStore = nil

	for _, args := range [][]string{
		{"task", "list"},
		{"task", "show", "x"},
		{"task", "advance", "x"},
		{"task", "delete", "x"},
	} {
		_, err := runCLI(t, args...)
		if err == nil || !strings.Contains(err.Error(), "not initialized") {
			t.Errorf("%v: err = %v, want not initialized", args, err)
		}
	}
}
