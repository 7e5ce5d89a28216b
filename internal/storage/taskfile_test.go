package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

func newTestFileTaskStore(t *testing.T) *FileTaskStore {
	t.Helper()
	return NewFileTaskStore(t.TempDir())
}

func sampleTask(step string) models.TaskRecord {
	return models.TaskRecord{
		Title:          "Permit",
		Classification: models.ClassSelf,
		Step:           step,
		Priority:       models.PriorityHigh,
		Business:       models.BusinessKey{BusinessID: "b-1", BusinessName: "Acme"},
		Assignees:      []models.Assignee{{PersonID: "p-1", DisplayName: "Dana Kim"}},
	}
}

func TestFileTaskStore_CreateAndGet(t *testing.T) {
	s := newTestFileTaskStore(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, sampleTask("permit"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" || created.Version != 1 || created.CreatedAt.IsZero() {
		t.Fatalf("created = %+v", created)
	}

	got, err := s.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Step != "permit" || len(got.Assignees) != 1 || got.Assignees[0].DisplayName != "Dana Kim" {
		t.Errorf("got = %+v", got)
	}
}

func TestFileTaskStore_ListEmpty_WhenNoFile(t *testing.T) {
	s := newTestFileTaskStore(t)
	tasks, err := s.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestFileTaskStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewFileTaskStore(dir)
	created, err := first.CreateTask(ctx, sampleTask("quote"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := NewFileTaskStore(dir)
	tasks, err := second.ListTasks(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Errorf("tasks = %+v", tasks)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks.yaml")); err != nil {
		t.Errorf("tasks.yaml not written: %v", err)
	}
}

func TestFileTaskStore_UpdateCompareAndSet(t *testing.T) {
	s := newTestFileTaskStore(t)
	ctx := context.Background()
	created, _ := s.CreateTask(ctx, sampleTask("permit"))

	next := created.Clone()
	next.Step = "material_order"
	updated, err := s.UpdateTask(ctx, next, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Version != 2 || updated.Step != "material_order" {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("CreatedAt changed on update")
	}

	_, err = s.UpdateTask(ctx, next, 1)
	if !errors.Is(err, core.ErrVersionConflict) {
		t.Errorf("stale update err = %v, want ErrVersionConflict", err)
	}

	missing := next.Clone()
	missing.ID = "nope"
	if _, err := s.UpdateTask(ctx, missing, 1); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing update err = %v, want ErrNotFound", err)
	}
}

func TestFileTaskStore_Delete(t *testing.T) {
	s := newTestFileTaskStore(t)
	ctx := context.Background()
	created, _ := s.CreateTask(ctx, sampleTask("permit"))

	if err := s.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.GetTask(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTask(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestFileTaskStore_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tasks.yaml"), []byte("tasks: [unclosed\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileTaskStore(dir).ListTasks(context.Background()); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestFileTaskStore_ConcurrentUpdatesOneWins(t *testing.T) {
	s := newTestFileTaskStore(t)
	ctx := context.Background()
	created, _ := s.CreateTask(ctx, sampleTask("permit"))

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := created.Clone()
			next.Notes = "writer"
			_, errs[i] = s.UpdateTask(ctx, next, created.Version)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, core.ErrVersionConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d writers won, want 1", wins)
	}
}

func TestFileTaskStore_WorksWithTaskStore(t *testing.T) {
	remote := newTestFileTaskStore(t)
	ctx := context.Background()
	classifier, err := core.NewDelayClassifier(nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := core.NewTaskStore(remote, core.MustStepRegistry(), classifier, nil)
	if _, err := ts.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	created, err := ts.Create(ctx, core.CreateCommand{Task: sampleTask("permit")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, rec, err := ts.Advance(ctx, core.AdvanceCommand{TaskID: created.ID, ExpectedVersion: created.Version})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.NewStepID != "material_order" || rec.Version != 2 {
		t.Errorf("advance = %+v / %+v", res, rec)
	}

	stored, err := remote.GetTask(ctx, created.ID)
	if err != nil || stored.Step != "material_order" {
		t.Errorf("stored = %+v, %v", stored, err)
	}
}
