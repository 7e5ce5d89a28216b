package observability

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openEventLog(t *testing.T) (EventLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log, path
}

func writeEvents(t *testing.T, log EventLog, events ...Event) {
	t.Helper()
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing %s: %v", e.Type, err)
		}
	}
}

// taskLifecycle is one task moving through the self workflow plus a second
// task whose advance was rolled back after a version conflict.
func taskLifecycle(base time.Time) []Event {
	return []Event{
		NewTaskEvent(EventCreated, map[string]any{"task_id": "t-1", "classification": "self", "step": "needs_check"}, base),
		NewTaskEvent(EventCreated, map[string]any{"task_id": "t-2", "classification": "as", "step": "as_received"}, base.Add(time.Minute)),
		NewTaskEvent(EventAdvanced, map[string]any{"task_id": "t-1", "from_step": "needs_check", "to_step": "permit"}, base.Add(time.Hour)),
		NewTaskEvent(EventConflict, map[string]any{"task_id": "t-2", "op": "advance"}, base.Add(2*time.Hour)),
		NewTaskEvent(EventRolledBack, map[string]any{"task_id": "t-2", "op": "advance"}, base.Add(2*time.Hour+time.Second)),
		NewTaskEvent(EventCompleted, map[string]any{"task_id": "t-1"}, base.Add(26*time.Hour)),
	}
}

func TestEventLog_TaskLifecycleRoundTrip(t *testing.T) {
	log, _ := openEventLog(t)
	base := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	writeEvents(t, log, taskLifecycle(base)...)

	result, err := log.Read(EventFilter{TaskID: "t-1"})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	want := []string{
		"task t-1 created in self at needs_check",
		"task t-1 advanced needs_check -> permit",
		"task t-1 completed",
	}
	if len(result) != len(want) {
		t.Fatalf("t-1 has %d events, want %d: %+v", len(result), len(want), result)
	}
	for i, msg := range want {
		if result[i].Message != msg {
			t.Errorf("event %d msg = %q, want %q", i, result[i].Message, msg)
		}
		if result[i].TaskID() != "t-1" {
			t.Errorf("event %d TaskID = %q", i, result[i].TaskID())
		}
	}
	if !result[2].Time.Equal(base.Add(26 * time.Hour)) {
		t.Errorf("completed at %v", result[2].Time)
	}
	if got := result[1].Data["to_step"]; got != "permit" {
		t.Errorf("to_step = %v, want permit", got)
	}
}

func TestEventLog_Filters(t *testing.T) {
	log, _ := openEventLog(t)
	base := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	writeEvents(t, log, taskLifecycle(base)...)

	since := base.Add(30 * time.Minute)
	until := base.Add(3 * time.Hour)
	tests := []struct {
		name   string
		filter EventFilter
		want   []string
	}{
		{"all", EventFilter{}, []string{EventCreated, EventCreated, EventAdvanced, EventConflict, EventRolledBack, EventCompleted}},
		{"by type", EventFilter{Type: EventCreated}, []string{EventCreated, EventCreated}},
		{"warnings", EventFilter{Level: LevelWarn}, []string{EventConflict, EventRolledBack}},
		{"window", EventFilter{Since: &since, Until: &until}, []string{EventAdvanced, EventConflict, EventRolledBack}},
		{"task and level", EventFilter{TaskID: "t-2", Level: LevelInfo}, []string{EventCreated}},
		{"task and type", EventFilter{TaskID: "t-1", Type: EventRolledBack}, nil},
		{"unknown task", EventFilter{TaskID: "t-9"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := log.Read(tt.filter)
			if err != nil {
				t.Fatalf("reading events: %v", err)
			}
			var got []string
			for _, e := range result {
				got = append(got, e.Type)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("types = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventLog_ReadMissingFile(t *testing.T) {
	log, path := openEventLog(t)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	result, err := log.Read(EventFilter{TaskID: "t-1"})
	if err != nil || result != nil {
		t.Errorf("Read on missing file = %v, %v; want nil, nil", result, err)
	}
}

func TestEventLog_ConcurrentTaskWriters(t *testing.T) {
	log, _ := openEventLog(t)
	const tasks = 8
	const updates = 25

	var wg sync.WaitGroup
	for n := range tasks {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := range updates {
				e := NewTaskEvent(EventUpdated, map[string]any{"task_id": id, "n": i}, time.Now())
				if err := log.Write(e); err != nil {
					t.Errorf("writing %s: %v", id, err)
				}
			}
		}(fmt.Sprintf("t-%d", n))
	}
	wg.Wait()

	for n := range tasks {
		id := fmt.Sprintf("t-%d", n)
		result, err := log.Read(EventFilter{TaskID: id})
		if err != nil {
			t.Fatalf("reading %s: %v", id, err)
		}
		if len(result) != updates {
			t.Fatalf("%s has %d events, want %d", id, len(result), updates)
		}
		// Each writer's events stay in its own write order.
		for i, e := range result {
			if e.Data["n"] != float64(i) {
				t.Errorf("%s event %d n = %v", id, i, e.Data["n"])
				break
			}
		}
	}
}

func TestLevelFor(t *testing.T) {
	for _, typ := range []string{EventRolledBack, EventConflict, EventDuplicateOverridden} {
		if got := LevelFor(typ); got != LevelWarn {
			t.Errorf("LevelFor(%s) = %s, want WARN", typ, got)
		}
	}
	for _, typ := range []string{EventCreated, EventUpdated, EventAdvanced, EventCompleted, EventDeleted} {
		if got := LevelFor(typ); got != LevelInfo {
			t.Errorf("LevelFor(%s) = %s, want INFO", typ, got)
		}
	}
}

func TestEventLog_Limit(t *testing.T) {
	log, _ := openEventLog(t)

	base := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	for i := range 7 {
		e := Event{Time: base.Add(time.Duration(i) * time.Minute), Level: LevelInfo, Type: EventUpdated,
			Data: map[string]any{"task_id": "t-1", "n": i}}
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	result, err := log.Read(EventFilter{TaskID: "t-1", Limit: 3})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 events, got %d", len(result))
	}
	// JSON numbers decode as float64.
	for i, want := range []float64{4, 5, 6} {
		if got := result[i].Data["n"]; got != want {
			t.Errorf("event %d n = %v, want %v", i, got, want)
		}
	}
}

func TestEventLog_SkipsMalformedLines(t *testing.T) {
	log, path := openEventLog(t)

	if err := log.Write(Event{Time: time.Now().UTC(), Type: EventCreated}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n\n")
	_ = f.Close()
	if err := log.Write(Event{Time: time.Now().UTC(), Type: EventDeleted}); err != nil {
		t.Fatal(err)
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 valid events, got %d", len(result))
	}
}

func TestEventLog_WriteAfterClose(t *testing.T) {
	log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := log.Write(Event{Type: EventCreated}); !errors.Is(err, ErrEventLogClosed) {
		t.Errorf("Write after Close = %v, want ErrEventLogClosed", err)
	}
}

func TestNewTaskEvent(t *testing.T) {
	now := time.Date(2026, 3, 20, 18, 0, 0, 0, time.FixedZone("KST", 9*3600))

	tests := []struct {
		eventType string
		data      map[string]any
		level     string
		msg       string
	}{
		{EventCreated, map[string]any{"task_id": "t-1", "classification": "self", "step": "needs_check"}, LevelInfo, "task t-1 created in self at needs_check"},
		{EventAdvanced, map[string]any{"task_id": "t-1", "from_step": "permit", "to_step": "material_order"}, LevelInfo, "task t-1 advanced permit -> material_order"},
		{EventCompleted, map[string]any{"task_id": "t-1"}, LevelInfo, "task t-1 completed"},
		{EventRolledBack, map[string]any{"task_id": "t-1", "op": "advance"}, LevelWarn, "advance of task t-1 rolled back"},
		{EventConflict, map[string]any{"task_id": "t-1", "op": "update"}, LevelWarn, "update of task t-1 hit a version conflict"},
		{"system.started", nil, LevelInfo, "system.started"},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			e := NewTaskEvent(tt.eventType, tt.data, now)
			if e.Level != tt.level {
				t.Errorf("Level = %s, want %s", e.Level, tt.level)
			}
			if e.Message != tt.msg {
				t.Errorf("Message = %q, want %q", e.Message, tt.msg)
			}
			if e.Time.Location() != time.UTC || !e.Time.Equal(now) {
				t.Errorf("Time = %v, want %v in UTC", e.Time, now)
			}
		})
	}
}
