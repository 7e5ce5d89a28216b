package observability

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Task event types written by the task store.
const (
	EventCreated             = "task.created"
	EventUpdated             = "task.updated"
	EventAdvanced            = "task.advanced"
	EventCompleted           = "task.completed"
	EventDeleted             = "task.deleted"
	EventRolledBack          = "task.rolled_back"
	EventConflict            = "task.conflict"
	EventDuplicateOverridden = "task.duplicate_overridden"
)

// Event levels.
const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

// maxEventLine bounds a single JSONL record. Task payloads carry notes, so
// lines can exceed bufio's 64 KiB default.
const maxEventLine = 1 << 20

// ErrEventLogClosed is returned by Write after Close.
var ErrEventLogClosed = errors.New("event log closed")

// Event is one line of the task event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// TaskID returns the task the event refers to, if any.
func (e Event) TaskID() string {
	id, _ := e.Data["task_id"].(string)
	return id
}

// EventFilter selects events. Zero fields match everything. Limit keeps
// only the most recent matches.
type EventFilter struct {
	Since  *time.Time
	Until  *time.Time
	Type   string
	Level  string
	TaskID string
	Limit  int
}

// LevelFor maps an event type to its level. Rollbacks, version conflicts
// and duplicate overrides are warnings.
func LevelFor(eventType string) string {
	switch eventType {
	case EventRolledBack, EventConflict, EventDuplicateOverridden:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// NewTaskEvent builds the log record for a task store event.
func NewTaskEvent(eventType string, data map[string]any, now time.Time) Event {
	return Event{
		Time:    now.UTC(),
		Level:   LevelFor(eventType),
		Type:    eventType,
		Message: taskEventMessage(eventType, data),
		Data:    data,
	}
}

func taskEventMessage(eventType string, data map[string]any) string {
	id, _ := data["task_id"].(string)
	switch eventType {
	case EventCreated:
		return fmt.Sprintf("task %s created in %v at %v", id, data["classification"], data["step"])
	case EventAdvanced:
		return fmt.Sprintf("task %s advanced %v -> %v", id, data["from_step"], data["to_step"])
	case EventCompleted:
		return fmt.Sprintf("task %s completed", id)
	case EventDeleted:
		return fmt.Sprintf("task %s deleted", id)
	case EventRolledBack:
		return fmt.Sprintf("%v of task %s rolled back", data["op"], id)
	case EventConflict:
		return fmt.Sprintf("%v of task %s hit a version conflict", data["op"], id)
	case EventDuplicateOverridden:
		return fmt.Sprintf("duplicate warning for task %s overridden", id)
	default:
		return eventType
	}
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// jsonlEventLog is an append-only JSONL file. Writes are serialized; reads
// open their own handle and see every completed write.
type jsonlEventLog struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewJSONLEventLog opens (or creates) the JSONL event log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrEventLogClosed
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read returns the events matching filter in file order. Malformed lines
// are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if !filter.matches(event) {
			continue
		}
		events = append(events, event)
		if filter.Limit > 0 && len(events) > 2*filter.Limit {
			events = append(events[:0], events[len(events)-filter.Limit:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func (f EventFilter) matches(event Event) bool {
	if f.Since != nil && event.Time.Before(*f.Since) {
		return false
	}
	if f.Until != nil && event.Time.After(*f.Until) {
		return false
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	if f.Level != "" && event.Level != f.Level {
		return false
	}
	if f.TaskID != "" && event.TaskID() != f.TaskID {
		return false
	}
	return true
}
