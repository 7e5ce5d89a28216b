package observability

import (
	"fmt"
	"time"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksUpdated       int            `json:"tasks_updated"`
	TasksAdvanced      int            `json:"tasks_advanced"`
	TasksCompleted     int            `json:"tasks_completed"`
	TasksDeleted       int            `json:"tasks_deleted"`
	Rollbacks          int            `json:"rollbacks"`
	Conflicts          int            `json:"conflicts"`
	DuplicateOverrides int            `json:"duplicate_overrides"`
	CreatedByClass     map[string]int `json:"created_by_classification"`
	CompletedByClass   map[string]int `json:"completed_by_classification"`
	AdvancesByStep     map[string]int `json:"advances_by_step"`
	EventCount         int            `json:"event_count"`
	// MeanCycleTime averages created-to-completed time over tasks whose
	// creation and completion both fall inside the window.
	MeanCycleTime time.Duration `json:"mean_cycle_time_ns"`
	CycleSamples  int           `json:"cycle_samples"`
	OldestEvent        *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent        *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		CreatedByClass:   make(map[string]int),
		CompletedByClass: make(map[string]int),
		AdvancesByStep:   make(map[string]int),
	}
	createdAt := make(map[string]time.Time)
	var cycleTotal time.Duration

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case EventCreated:
			m.TasksCreated++
			if class, ok := event.Data["classification"].(string); ok {
				m.CreatedByClass[class]++
			}
			if id := event.TaskID(); id != "" {
				createdAt[id] = event.Time
			}
		case EventUpdated:
			m.TasksUpdated++
		case EventAdvanced:
			m.TasksAdvanced++
			if step, ok := event.Data["to_step"].(string); ok {
				m.AdvancesByStep[step]++
			}
		case EventCompleted:
			m.TasksCompleted++
			if class, ok := event.Data["classification"].(string); ok {
				m.CompletedByClass[class]++
			}
			if start, ok := createdAt[event.TaskID()]; ok {
				cycleTotal += event.Time.Sub(start)
				m.CycleSamples++
			}
		case EventDeleted:
			m.TasksDeleted++
		case EventRolledBack:
			m.Rollbacks++
		case EventConflict:
			m.Conflicts++
		case EventDuplicateOverridden:
			m.DuplicateOverrides++
		}
	}

	if m.CycleSamples > 0 {
		m.MeanCycleTime = cycleTotal / time.Duration(m.CycleSamples)
	}
	return m, nil
}
