package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var alertsNotify bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active SLA alerts and warnings",
	Long: `Evaluate alert conditions against the current task list and the event log.

Alerts fire for active tasks that are delayed or overdue, for too many open
tasks, and for repeated rollbacks in the last 24 hours. With --notify the
alerts are also posted to the configured Slack webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized")
		}
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}

		alerts, err := AlertEngine.Evaluate(TaskStore.Views(), time.Now())
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
		} else {
			fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
			for _, alert := range alerts {
				severity := strings.ToUpper(string(alert.Severity))
				fmt.Fprintf(out, "  [%s] %s\n", severity, alert.Message)
				fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"))
			}
		}

		if !alertsNotify {
			return nil
		}
		if Notifier == nil {
			return fmt.Errorf("notifications are not configured (set notifications.slack_webhook_url)")
		}
		if err := Notifier.Notify(cmd.Context(), alerts); err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		if len(alerts) > 0 {
			fmt.Fprintln(out, "Notification sent.")
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post alerts to the configured Slack webhook")
	rootCmd.AddCommand(alertsCmd)
}
