// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the task board as tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/internal/observability"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

// Server wraps the task store and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	store       *core.TaskStore
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	now         func() time.Time
}

// NewServer creates a new MCP server over store. metricsCalc and
// alertEngine may be nil if observability is disabled.
func NewServer(store *core.TaskStore, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:       store,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		now:         time.Now,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "opsb", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type getTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the task identifier"`
}

type taskOutput struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Classification string   `json:"classification"`
	Step           string   `json:"step"`
	StepLabel      string   `json:"step_label"`
	Progress       int      `json:"progress"`
	Delay          string   `json:"delay"`
	OverdueDays    int      `json:"overdue_days,omitempty"`
	Priority       string   `json:"priority"`
	BusinessID     string   `json:"business_id,omitempty"`
	BusinessName   string   `json:"business_name,omitempty"`
	Locality       string   `json:"locality,omitempty"`
	Assignees      []string `json:"assignees,omitempty"`
	StartDate      string   `json:"start_date,omitempty"`
	DueDate        string   `json:"due_date,omitempty"`
	Version        int64    `json:"version"`
	Updated        string   `json:"updated"`
}

type listTasksInput struct {
	Search         string `json:"search,omitempty" jsonschema:"comma-separated terms; every term must match"`
	Classification string `json:"classification,omitempty" jsonschema:"self, subsidy, dealer, outsourcing, etc, as or all"`
	Priority       string `json:"priority,omitempty" jsonschema:"high, medium or low"`
	Step           string `json:"step,omitempty" jsonschema:"step id to filter on"`
	ShowCompleted  bool   `json:"show_completed,omitempty" jsonschema:"list completed tasks instead of active ones"`
	Page           int    `json:"page,omitempty" jsonschema:"1-based page number"`
	PageSize       int    `json:"page_size,omitempty" jsonschema:"tasks per page, defaults to 20"`
}

type listTasksOutput struct {
	Tasks     []taskOutput `json:"tasks"`
	Count     int          `json:"count"`
	Total     int          `json:"total"`
	Page      int          `json:"page"`
	PageCount int          `json:"page_count"`
}

type getBoardInput struct {
	Classification string `json:"classification,omitempty" jsonschema:"classification to show, or all to merge columns by label"`
}

type boardColumnOutput struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Count   int      `json:"count"`
	TaskIDs []string `json:"task_ids"`
}

type getBoardOutput struct {
	Classification string              `json:"classification"`
	Columns        []boardColumnOutput `json:"columns"`
	Unplaced       []string            `json:"unplaced,omitempty"`
}

type advanceTaskInput struct {
	TaskID            string `json:"task_id" jsonschema:"required,the task identifier"`
	ExpectedVersion   int64  `json:"expected_version,omitempty" jsonschema:"version last read; omit to use the current one"`
	OverrideConfirmed bool   `json:"override_confirmed,omitempty" jsonschema:"proceed even if another active task exists for the same business and step"`
}

type advanceTaskOutput struct {
	Message string     `json:"message"`
	From    string     `json:"from_step"`
	To      string     `json:"to_step"`
	Task    taskOutput `json:"task"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksUpdated       int            `json:"tasks_updated"`
	TasksAdvanced      int            `json:"tasks_advanced"`
	TasksCompleted     int            `json:"tasks_completed"`
	TasksDeleted       int            `json:"tasks_deleted"`
	Rollbacks          int            `json:"rollbacks"`
	Conflicts          int            `json:"conflicts"`
	DuplicateOverrides int            `json:"duplicate_overrides"`
	CreatedByClass     map[string]int `json:"created_by_classification"`
	EventCount         int            `json:"event_count"`
	OldestEvent        string         `json:"oldest_event,omitempty"`
	NewestEvent        string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TaskID      string `json:"task_id,omitempty"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a task by ID, including its step label, progress percentage and SLA delay state.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List active (or completed) tasks with optional search, classification, priority and step filters. Results are paginated.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_board",
		Description: "Get the kanban board for a classification, or for all classifications merged by step label.",
	}, s.handleGetBoard)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "advance_task",
		Description: "Move a task to the next step of its sequence. Fails if the task changed since expected_version or is already completed.",
	}, s.handleAdvanceTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated metrics from the event log: tasks created, advanced, completed, rollbacks and conflicts.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active SLA alerts (overdue, delayed and at-risk tasks, open task count, store rollbacks).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	view, err := s.store.View(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}

	return nil, viewToOutput(view), nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	class := models.Classification(input.Classification)
	if class != "" && class != models.ClassAll && !class.Valid() {
		return errorResult(fmt.Sprintf("unknown classification %q", input.Classification)), listTasksOutput{Tasks: []taskOutput{}}, nil
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	res := s.store.Query(core.TaskFilter{
		Search:         input.Search,
		Classification: class,
		Priority:       models.Priority(input.Priority),
		Step:           input.Step,
		ShowCompleted:  input.ShowCompleted,
	}, core.Page{Size: pageSize, Number: input.Page})

	out := listTasksOutput{
		Tasks:     make([]taskOutput, len(res.Items)),
		Count:     len(res.Items),
		Total:     res.Total,
		Page:      res.Page,
		PageCount: res.PageCount,
	}
	for i, v := range res.Items {
		out.Tasks[i] = viewToOutput(v)
	}

	return nil, out, nil
}

func (s *Server) handleGetBoard(_ context.Context, _ *gomcp.CallToolRequest, input getBoardInput) (*gomcp.CallToolResult, getBoardOutput, error) {
	class := models.Classification(input.Classification)
	if class == "" {
		class = models.ClassAll
	}
	if class != models.ClassAll && !class.Valid() {
		return errorResult(fmt.Sprintf("unknown classification %q", input.Classification)), getBoardOutput{}, nil
	}

	f := core.TaskFilter{}
	if class != models.ClassAll {
		f.Classification = class
	}
	board := s.store.Board(f, class)

	out := getBoardOutput{
		Classification: string(class),
		Columns:        make([]boardColumnOutput, len(board.Columns)),
	}
	for i, col := range board.Columns {
		ids := make([]string, len(col.Cards))
		for j, card := range col.Cards {
			ids[j] = card.ID
		}
		out.Columns[i] = boardColumnOutput{Key: col.Key, Label: col.Label, Count: len(col.Cards), TaskIDs: ids}
	}
	for _, v := range board.Unplaced {
		out.Unplaced = append(out.Unplaced, v.ID)
	}

	return nil, out, nil
}

func (s *Server) handleAdvanceTask(ctx context.Context, _ *gomcp.CallToolRequest, input advanceTaskInput) (*gomcp.CallToolResult, advanceTaskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), advanceTaskOutput{}, nil
	}

	res, rec, err := s.store.Advance(ctx, core.AdvanceCommand{
		TaskID:            input.TaskID,
		ExpectedVersion:   input.ExpectedVersion,
		OverrideConfirmed: input.OverrideConfirmed,
	})
	if err != nil {
		return errorResult(describeTaskError(input.TaskID, err)), advanceTaskOutput{}, nil
	}

	view, err := s.store.View(rec.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("reading task %s: %s", rec.ID, err)), advanceTaskOutput{}, nil
	}

	out := advanceTaskOutput{
		Message: fmt.Sprintf("task %s moved to %s (%d%%)", rec.ID, res.NewLabel, res.NewProgress),
		From:    res.PreviousStepID,
		To:      res.NewStepID,
		Task:    viewToOutput(view),
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr, s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:       metrics.TasksCreated,
		TasksUpdated:       metrics.TasksUpdated,
		TasksAdvanced:      metrics.TasksAdvanced,
		TasksCompleted:     metrics.TasksCompleted,
		TasksDeleted:       metrics.TasksDeleted,
		Rollbacks:          metrics.Rollbacks,
		Conflicts:          metrics.Conflicts,
		DuplicateOverrides: metrics.DuplicateOverrides,
		CreatedByClass:     metrics.CreatedByClass,
		EventCount:         metrics.EventCount,
	}
	if out.CreatedByClass == nil {
		out.CreatedByClass = make(map[string]int)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	alerts, err := s.alertEngine.Evaluate(s.store.Views(), s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TaskID:      a.TaskID,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func viewToOutput(v core.TaskView) taskOutput {
	out := taskOutput{
		ID:             v.ID,
		Title:          v.Title,
		Classification: string(v.Classification),
		Step:           v.Step,
		StepLabel:      v.StepLabel,
		Progress:       v.Progress,
		Delay:          string(v.Delay.Severity),
		OverdueDays:    v.Delay.OverdueDays,
		Priority:       string(v.Priority),
		BusinessID:     v.Business.BusinessID,
		BusinessName:   v.Business.BusinessName,
		Locality:       v.Business.LocalityName,
		StartDate:      v.StartDate,
		DueDate:        v.DueDate,
		Version:        v.Version,
		Updated:        v.UpdatedAt.Format(time.RFC3339),
	}
	if v.Assignee != "" {
		out.Assignees = append(out.Assignees, v.Assignee)
	}
	for _, a := range v.Assignees {
		out.Assignees = append(out.Assignees, a.DisplayName)
	}
	return out
}

// describeTaskError adds the recovery hint a client needs for each kind.
func describeTaskError(taskID string, err error) string {
	kind, _ := core.KindOf(err)
	switch kind {
	case core.KindDuplicateWorkflowInstance:
		return fmt.Sprintf("advancing task %s: %s; retry with override_confirmed=true to proceed", taskID, err)
	case core.KindVersionConflict:
		return fmt.Sprintf("advancing task %s: %s; fetch the task again and retry", taskID, err)
	default:
		return fmt.Sprintf("advancing task %s: %s", taskID, err)
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		CreatedByClass: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time before now.
func parseSince(s string, now time.Time) (time.Time, error) {
	now = now.UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
