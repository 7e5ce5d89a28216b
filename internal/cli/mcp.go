package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	opsbmcp "github.com/valter-silva-au/opsboard/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the opsb MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the opsb MCP server on stdio",
	Long: `Start the opsb MCP server on stdio transport.

The server exposes the task board as MCP tools that AI assistants can call:
get_task, list_tasks, get_board, advance_task, get_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}

		srv := opsbmcp.NewServer(TaskStore, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := interruptContext(cmd)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
