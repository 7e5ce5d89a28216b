package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/opsboard/internal/core"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

func (s AlertSeverity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TaskID      string        `json:"task_id,omitempty"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	MaxOpenTasks      int `yaml:"max_open_tasks" json:"max_open_tasks"`
	MaxDailyRollbacks int `yaml:"max_daily_rollbacks" json:"max_daily_rollbacks"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxOpenTasks:      200,
		MaxDailyRollbacks: 5,
	}
}

// AlertEngine evaluates alert conditions against task views and the event log.
type AlertEngine interface {
	Evaluate(views []core.TaskView, now time.Time) ([]Alert, error)
}

// alertEngine implements AlertEngine. eventLog may be nil, in which case
// only the task-based checks run.
type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
	}
}

// Evaluate checks all alert conditions and returns triggered alerts ordered
// by severity, then id.
func (ae *alertEngine) Evaluate(views []core.TaskView, now time.Time) ([]Alert, error) {
	now = now.UTC()
	var alerts []Alert

	alerts = append(alerts, ae.checkDelays(views, now)...)
	alerts = append(alerts, ae.checkOpenTasks(views, now)...)

	rollbackAlerts, err := ae.checkRollbacks(now)
	if err != nil {
		return nil, fmt.Errorf("checking rollbacks: %w", err)
	}
	alerts = append(alerts, rollbackAlerts...)

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity.rank() != alerts[j].Severity.rank() {
			return alerts[i].Severity.rank() < alerts[j].Severity.rank()
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

// checkDelays raises one alert per active task that is not on time.
// Completed tasks keep a delay state but never alert.
func (ae *alertEngine) checkDelays(views []core.TaskView, now time.Time) []Alert {
	var alerts []Alert
	for _, v := range views {
		if v.Completed() {
			continue
		}
		name := v.Title
		if v.Business.BusinessName != "" {
			name = v.Business.BusinessName + " / " + v.StepLabel
		}

		switch v.Delay.Severity {
		case core.SeverityOverdue:
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("overdue-%s", v.ID),
				Condition:   "task_overdue",
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("%s (%s) is overdue by %d days", name, v.Classification, v.Delay.OverdueDays),
				TaskID:      v.ID,
				TriggeredAt: now,
			})
		case core.SeverityDelayed:
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("delayed-%s", v.ID),
				Condition:   "task_delayed",
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("%s (%s) is %d days past its critical threshold", name, v.Classification, v.Delay.OverdueDays),
				TaskID:      v.ID,
				TriggeredAt: now,
			})
		case core.SeverityAtRisk:
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("at-risk-%s", v.ID),
				Condition:   "task_at_risk",
				Severity:    SeverityLow,
				Message:     fmt.Sprintf("%s (%s) is at risk of missing its SLA", name, v.Classification),
				TaskID:      v.ID,
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkOpenTasks alerts when the number of active tasks exceeds the threshold.
func (ae *alertEngine) checkOpenTasks(views []core.TaskView, now time.Time) []Alert {
	if ae.thresholds.MaxOpenTasks <= 0 {
		return nil
	}
	open := 0
	for _, v := range views {
		if !v.Completed() {
			open++
		}
	}
	if open <= ae.thresholds.MaxOpenTasks {
		return nil
	}
	return []Alert{{
		ID:          "open-tasks",
		Condition:   "open_tasks_too_many",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("%d open tasks, exceeding the maximum of %d", open, ae.thresholds.MaxOpenTasks),
		TriggeredAt: now,
	}}
}

// checkRollbacks alerts when the store rejected more writes in the last 24
// hours than the threshold allows.
func (ae *alertEngine) checkRollbacks(now time.Time) ([]Alert, error) {
	if ae.eventLog == nil || ae.thresholds.MaxDailyRollbacks <= 0 {
		return nil, nil
	}
	since := now.Add(-24 * time.Hour)
	events, err := ae.eventLog.Read(EventFilter{Since: &since, Type: EventRolledBack})
	if err != nil {
		return nil, err
	}
	if len(events) <= ae.thresholds.MaxDailyRollbacks {
		return nil, nil
	}
	return []Alert{{
		ID:          "store-rollbacks",
		Condition:   "store_rollbacks_high",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d writes rolled back in the last 24 hours, exceeding the maximum of %d", len(events), ae.thresholds.MaxDailyRollbacks),
		TriggeredAt: now,
	}}, nil
}
