package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/internal/observability"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks (create, update, advance, delete, list, show, history)",
	Long: `Unified task management commands.

Create tasks for a business or as ad-hoc work, move them along their
classification's step sequence, and inspect them with derived progress and
SLA delay state.`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new task",
	Long: `Create a new task.

With --business the classification, first step and business details come
from the business directory (the business category decides the
classification). Otherwise pass --class and, for anything but etc tasks,
--business-id and --business-name.

If another active task exists for the same business at the same step the
command fails; re-run with --force to create it anyway.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		flags := cmd.Flags()

		priority, _ := flags.GetString("priority")
		var task models.TaskRecord
		if businessID, _ := flags.GetString("business"); businessID != "" {
			if Businesses == nil {
				return fmt.Errorf("business directory not initialized")
			}
			b, err := Businesses.GetBusiness(ctx, businessID)
			if err != nil {
				return fmt.Errorf("looking up business %s: %w", businessID, err)
			}
			task, err = core.NewTaskFromBusiness(TaskStore.Registry(), *b, models.Priority(priority))
			if err != nil {
				return err
			}
		} else {
			class, _ := flags.GetString("class")
			task.Classification = models.Classification(class)
			task.Priority = models.Priority(priority)
			task.Business.BusinessID, _ = flags.GetString("business-id")
			task.Business.BusinessName, _ = flags.GetString("business-name")
			task.Business.LocalityName, _ = flags.GetString("locality")
		}

		if step, _ := flags.GetString("step"); step != "" {
			task.Step = step
		} else if task.Step == "" {
			first, ok := TaskStore.Registry().First(task.Classification)
			if !ok {
				return fmt.Errorf("unknown classification %q", task.Classification)
			}
			task.Step = first.StepID
		}
		if title, _ := flags.GetString("title"); title != "" {
			task.Title = title
		}
		task.Description, _ = flags.GetString("description")
		task.StartDate, _ = flags.GetString("start")
		task.DueDate, _ = flags.GetString("due")
		assignees, _ := flags.GetStringSlice("assignee")
		task.Assignees = toAssignees(assignees)

		force, _ := flags.GetBool("force")
		created, err := TaskStore.Create(ctx, core.CreateCommand{Task: task, OverrideConfirmed: force})
		if err != nil {
			return explainTaskError(err)
		}

		view, err := TaskStore.View(created.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", created.ID)
		printTaskView(cmd.OutOrStdout(), view)
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Update task fields",
	Long: `Update fields of an existing task. Only the flags you pass are changed.

Pass --version with the version you last read to fail instead of
overwriting a concurrent change.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}
		task, err := TaskStore.Get(args[0])
		if err != nil {
			return explainTaskError(err)
		}
		flags := cmd.Flags()

		stringFields := []struct {
			flag   string
			target *string
		}{
			{"title", &task.Title},
			{"step", &task.Step},
			{"start", &task.StartDate},
			{"due", &task.DueDate},
			{"report", &task.ReportDate},
			{"description", &task.Description},
			{"notes", &task.Notes},
			{"locality", &task.Business.LocalityName},
		}
		for _, f := range stringFields {
			if flags.Changed(f.flag) {
				*f.target, _ = flags.GetString(f.flag)
			}
		}
		if flags.Changed("priority") {
			p, _ := flags.GetString("priority")
			task.Priority = models.Priority(p)
		}
		if flags.Changed("assignee") {
			names, _ := flags.GetStringSlice("assignee")
			task.Assignees = toAssignees(names)
			task.Assignee = ""
		}
		task.Version, _ = flags.GetInt64("version")

		force, _ := flags.GetBool("force")
		updated, err := TaskStore.Update(cmd.Context(), core.UpdateCommand{Task: task, OverrideConfirmed: force})
		if err != nil {
			return explainTaskError(err)
		}

		view, err := TaskStore.View(updated.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated task %s (version %d)\n", updated.ID, updated.Version)
		printTaskView(cmd.OutOrStdout(), view)
		return nil
	},
}

var taskAdvanceCmd = &cobra.Command{
	Use:   "advance <task-id>",
	Short: "Move a task to its next step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}
		version, _ := cmd.Flags().GetInt64("version")
		force, _ := cmd.Flags().GetBool("force")

		res, rec, err := TaskStore.Advance(cmd.Context(), core.AdvanceCommand{
			TaskID:            args[0],
			ExpectedVersion:   version,
			OverrideConfirmed: force,
		})
		if err != nil {
			return explainTaskError(err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Task %s: %s -> %s (%d%%)\n", rec.ID,
			TaskStore.Registry().LabelFor(rec.Classification, res.PreviousStepID), res.NewLabel, res.NewProgress)
		if res.NewProgress == 100 {
			fmt.Fprintln(out, "Task completed.")
		}
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}
		if err := TaskStore.Delete(cmd.Context(), args[0]); err != nil {
			return explainTaskError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks with filters",
	Long: `List active tasks (or completed ones with --completed).

--search takes comma-separated terms; a task must match every term in its
business name, locality, description, notes or assignee names.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}
		flags := cmd.Flags()

		var f core.TaskFilter
		f.Search, _ = flags.GetString("search")
		class, _ := flags.GetString("class")
		f.Classification = models.Classification(class)
		priority, _ := flags.GetString("priority")
		f.Priority = models.Priority(priority)
		f.Assignee, _ = flags.GetString("assignee")
		f.Step, _ = flags.GetString("step")
		f.Locality, _ = flags.GetString("locality")
		f.MissingReportDate, _ = flags.GetBool("missing-report")
		f.ShowCompleted, _ = flags.GetBool("completed")

		page, _ := flags.GetInt("page")
		size, _ := flags.GetInt("page-size")
		if size <= 0 {
			size = pageSize()
		}
		res := TaskStore.Query(f, core.Page{Size: size, Number: page})

		out := cmd.OutOrStdout()
		if asJSON, _ := flags.GetBool("json"); asJSON {
			return writeJSON(out, res)
		}
		if res.Total == 0 {
			fmt.Fprintln(out, "No tasks found.")
			return nil
		}
		printTaskTable(out, res.Items)
		fmt.Fprintf(out, "\nPage %d of %d (%d tasks)\n", res.Page, res.PageCount, res.Total)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its derived progress and delay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}
		view, err := TaskStore.View(args[0])
		if err != nil {
			return explainTaskError(err)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), view)
		}
		printTaskView(cmd.OutOrStdout(), view)
		return nil
	},
}

var taskHistoryCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show the event history of a task",
	Long: `Show the events recorded for a task, oldest first.

Use --limit to show only the most recent events.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventLog == nil {
			return fmt.Errorf("event log not initialized")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		events, err := EventLog.Read(observability.EventFilter{TaskID: args[0], Limit: limit})
		if err != nil {
			return fmt.Errorf("reading events: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintf(out, "No events recorded for %s.\n", args[0])
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(out, "%s  %-5s %-26s %s\n", e.Time.Local().Format("2006-01-02 15:04:05"), e.Level, e.Type, e.Message)
		}
		return nil
	},
}

// explainTaskError adds the recovery hint for errors the user can act on.
func explainTaskError(err error) error {
	kind, _ := core.KindOf(err)
	switch kind {
	case core.KindDuplicateWorkflowInstance:
		return fmt.Errorf("%w\nre-run with --force to proceed anyway", err)
	case core.KindVersionConflict:
		return fmt.Errorf("%w\nrun 'opsb task show' to see the current version and retry", err)
	default:
		return err
	}
}

func toAssignees(names []string) []models.Assignee {
	var out []models.Assignee
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, models.Assignee{DisplayName: n})
		}
	}
	return out
}

func assigneeNames(t models.TaskRecord) string {
	var names []string
	if t.Assignee != "" {
		names = append(names, t.Assignee)
	}
	for _, a := range t.Assignees {
		names = append(names, a.DisplayName)
	}
	return strings.Join(names, ", ")
}

func printTaskView(w io.Writer, v core.TaskView) {
	fmt.Fprintf(w, "  ID:        %s\n", v.ID)
	fmt.Fprintf(w, "  Title:     %s\n", v.Title)
	if v.Business.BusinessName != "" {
		fmt.Fprintf(w, "  Business:  %s", v.Business.BusinessName)
		if v.Business.LocalityName != "" {
			fmt.Fprintf(w, " (%s)", v.Business.LocalityName)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  Class:     %s\n", v.Classification)
	fmt.Fprintf(w, "  Step:      %s (%d%%)\n", v.StepLabel, v.Progress)
	fmt.Fprintf(w, "  Delay:     %s", v.Delay.Severity)
	if v.Delay.OverdueDays > 0 {
		fmt.Fprintf(w, " by %d days", v.Delay.OverdueDays)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Priority:  %s\n", v.Priority)
	if names := assigneeNames(v.TaskRecord); names != "" {
		fmt.Fprintf(w, "  Assignees: %s\n", names)
	}
	if v.StartDate != "" || v.DueDate != "" {
		fmt.Fprintf(w, "  Dates:     start %s, due %s\n", orDash(v.StartDate), orDash(v.DueDate))
	}
	fmt.Fprintf(w, "  Version:   %d\n", v.Version)
}

func printTaskTable(w io.Writer, views []core.TaskView) {
	fmt.Fprintf(w, "%-36s %-12s %-26s %5s  %-8s %-8s %s\n", "ID", "CLASS", "STEP", "PROG", "DELAY", "PRIORITY", "BUSINESS")
	for _, v := range views {
		fmt.Fprintf(w, "%-36s %-12s %-26s %4d%%  %-8s %-8s %s\n",
			v.ID, v.Classification, truncate(v.StepLabel, 26), v.Progress,
			v.Delay.Severity, v.Priority, v.Business.BusinessName)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "~"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	// task create flags
	taskCreateCmd.Flags().String("business", "", "Create from a business in the directory (id)")
	taskCreateCmd.Flags().String("class", string(models.ClassEtc), "Classification: self, subsidy, dealer, outsourcing, etc, as")
	taskCreateCmd.Flags().String("step", "", "Initial step id (defaults to the first step)")
	taskCreateCmd.Flags().String("title", "", "Task title (defaults to the step label)")
	taskCreateCmd.Flags().String("business-id", "", "Business id for tasks not created from the directory")
	taskCreateCmd.Flags().String("business-name", "", "Business name")
	taskCreateCmd.Flags().String("locality", "", "Locality name")
	taskCreateCmd.Flags().String("priority", "", "Priority: high, medium, low (default medium)")
	taskCreateCmd.Flags().StringSlice("assignee", nil, "Assignee names (repeatable or comma-separated)")
	taskCreateCmd.Flags().String("start", "", "Start date (YYYY-MM-DD)")
	taskCreateCmd.Flags().String("due", "", "Due date (YYYY-MM-DD)")
	taskCreateCmd.Flags().String("description", "", "Free-text description")
	taskCreateCmd.Flags().Bool("force", false, "Create even if a duplicate workflow instance exists")
	_ = taskCreateCmd.RegisterFlagCompletionFunc("class", completeClassifications)
	_ = taskCreateCmd.RegisterFlagCompletionFunc("priority", completePriorities)
	_ = taskCreateCmd.RegisterFlagCompletionFunc("step", completeSteps)

	// task update flags
	for _, name := range []string{"title", "step", "start", "due", "report", "description", "notes", "locality", "priority"} {
		taskUpdateCmd.Flags().String(name, "", "New "+name)
	}
	taskUpdateCmd.Flags().StringSlice("assignee", nil, "Replace assignees")
	taskUpdateCmd.Flags().Int64("version", 0, "Version you last read (0 uses the current one)")
	taskUpdateCmd.Flags().Bool("force", false, "Update even if it creates a duplicate workflow instance")
	taskUpdateCmd.ValidArgsFunction = completeTaskIDs(false)
	_ = taskUpdateCmd.RegisterFlagCompletionFunc("priority", completePriorities)
	_ = taskUpdateCmd.RegisterFlagCompletionFunc("step", completeSteps)

	// task advance flags
	taskAdvanceCmd.Flags().Int64("version", 0, "Version you last read (0 uses the current one)")
	taskAdvanceCmd.Flags().Bool("force", false, "Advance even if another active task sits at the next step")
	taskAdvanceCmd.ValidArgsFunction = completeTaskIDs(false)

	taskDeleteCmd.ValidArgsFunction = completeTaskIDs(true)

	// task list flags
	taskListCmd.Flags().String("search", "", "Comma-separated search terms (all must match)")
	taskListCmd.Flags().String("class", "", "Filter by classification")
	taskListCmd.Flags().String("priority", "", "Filter by priority")
	taskListCmd.Flags().String("assignee", "", "Filter by assignee name")
	taskListCmd.Flags().String("step", "", "Filter by step id")
	taskListCmd.Flags().String("locality", "", "Filter by locality")
	taskListCmd.Flags().Bool("missing-report", false, "Only tasks without a report date")
	taskListCmd.Flags().Bool("completed", false, "Show completed tasks instead of active ones")
	taskListCmd.Flags().Int("page", 1, "Page number")
	taskListCmd.Flags().Int("page-size", 0, "Tasks per page (defaults to board.page_size)")
	taskListCmd.Flags().Bool("json", false, "Output as JSON")
	_ = taskListCmd.RegisterFlagCompletionFunc("class", completeClassifications)
	_ = taskListCmd.RegisterFlagCompletionFunc("priority", completePriorities)
	_ = taskListCmd.RegisterFlagCompletionFunc("step", completeSteps)

	taskShowCmd.Flags().Bool("json", false, "Output as JSON")
	taskShowCmd.ValidArgsFunction = completeTaskIDs(true)
	taskHistoryCmd.Flags().Int("limit", 0, "Show only the most recent N events")
	taskHistoryCmd.ValidArgsFunction = completeTaskIDs(true)

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskUpdateCmd)
	taskCmd.AddCommand(taskAdvanceCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskHistoryCmd)

	rootCmd.AddCommand(taskCmd)
}
