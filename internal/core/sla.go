package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// DelaySeverity is an ordered scale: on_time < at_risk < delayed < overdue.
type DelaySeverity string

const (
	SeverityOnTime  DelaySeverity = "on_time"
	SeverityAtRisk  DelaySeverity = "at_risk"
	SeverityDelayed DelaySeverity = "delayed"
	SeverityOverdue DelaySeverity = "overdue"
)

// Rank orders severities for comparison; unknown values rank lowest.
func (s DelaySeverity) Rank() int {
	switch s {
	case SeverityAtRisk:
		return 1
	case SeverityDelayed:
		return 2
	case SeverityOverdue:
		return 3
	default:
		return 0
	}
}

// DelayState is the derived SLA status of a task at a point in time.
type DelayState struct {
	Severity    DelaySeverity `json:"severity"`
	OverdueDays int           `json:"overdue_days"`
}

// DefaultSLAThresholds returns the built-in per-classification thresholds.
func DefaultSLAThresholds() map[models.Classification]models.SLAThresholds {
	return map[models.Classification]models.SLAThresholds{
		models.ClassSelf:        {WarningDays: 7, CriticalDays: 14, OverdueDays: 30},
		models.ClassSubsidy:     {WarningDays: 14, CriticalDays: 30, OverdueDays: 60},
		models.ClassDealer:      {WarningDays: 3, CriticalDays: 7, OverdueDays: 14},
		models.ClassOutsourcing: {WarningDays: 7, CriticalDays: 21, OverdueDays: 35},
		models.ClassEtc:         {WarningDays: 7, CriticalDays: 14, OverdueDays: 30},
		models.ClassAS:          {WarningDays: 3, CriticalDays: 7, OverdueDays: 10},
	}
}

// ValidateThresholds checks that warning < critical < overdue and all are positive.
func ValidateThresholds(t models.SLAThresholds) error {
	if t.WarningDays <= 0 {
		return fmt.Errorf("warning_days must be positive, got %d", t.WarningDays)
	}
	if !(t.WarningDays < t.CriticalDays && t.CriticalDays < t.OverdueDays) {
		return fmt.Errorf("thresholds must be strictly increasing, got %d/%d/%d",
			t.WarningDays, t.CriticalDays, t.OverdueDays)
	}
	return nil
}

// DelayClassifier derives delay severity from task dates and
// per-classification thresholds.
type DelayClassifier struct {
	thresholds map[models.Classification]models.SLAThresholds
}

// NewDelayClassifier creates a classifier from the defaults with the given
// overrides applied. Invalid overrides are rejected.
func NewDelayClassifier(overrides map[models.Classification]models.SLAThresholds) (*DelayClassifier, error) {
	thresholds := DefaultSLAThresholds()
	for c, t := range overrides {
		if !c.Valid() {
			return nil, fmt.Errorf("sla override for unknown classification %q", c)
		}
		if err := ValidateThresholds(t); err != nil {
			return nil, fmt.Errorf("sla override for %s: %w", c, err)
		}
		thresholds[c] = t
	}
	return &DelayClassifier{thresholds: thresholds}, nil
}

// Thresholds returns the thresholds in effect for c.
func (d *DelayClassifier) Thresholds(c models.Classification) (models.SLAThresholds, bool) {
	t, ok := d.thresholds[c]
	return t, ok
}

// Classify computes the delay state of a task. A due date in the past takes
// precedence over the start-date heuristic. Missing or malformed dates are
// treated as absent.
func (d *DelayClassifier) Classify(c models.Classification, startDate, dueDate string, now time.Time) DelayState {
	start, ok := ParseDate(startDate, now.Location())
	if !ok {
		return DelayState{Severity: SeverityOnTime}
	}

	if due, ok := ParseDate(dueDate, now.Location()); ok && due.Before(now) {
		return DelayState{Severity: SeverityOverdue, OverdueDays: daysBetween(due, now)}
	}

	t, ok := d.thresholds[c]
	if !ok {
		return DelayState{Severity: SeverityOnTime}
	}

	elapsed := daysBetween(start, now)
	switch {
	case elapsed >= t.OverdueDays:
		return DelayState{Severity: SeverityOverdue, OverdueDays: elapsed - t.OverdueDays}
	case elapsed >= t.CriticalDays:
		return DelayState{Severity: SeverityDelayed, OverdueDays: elapsed - t.CriticalDays}
	case elapsed >= t.WarningDays:
		return DelayState{Severity: SeverityAtRisk}
	default:
		return DelayState{Severity: SeverityOnTime}
	}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"2006.01.02",
}

// ParseDate parses a calendar date in one of the accepted layouts. Date-only
// values are interpreted at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// daysBetween returns floor((to-from) / 24h).
func daysBetween(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours() / 24))
}
