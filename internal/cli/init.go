package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/opsboard/internal/core"
)

// WorkspaceInit is the WorkspaceInitializer used by the init command.
// Set during application wiring.
var WorkspaceInit core.WorkspaceInitializer

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a new opsb workspace",
	Long: `Initialize a directory as an opsb workspace: .opsconfig.yaml, an empty
tasks.yaml and an empty businesses.yaml.

Safe to run on existing workspaces -- files that already exist are skipped
and not overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkspaceInit == nil {
			return fmt.Errorf("workspace initializer not initialized")
		}

		basePath := "."
		if len(args) > 0 {
			basePath = args[0]
		}
		absPath, err := filepath.Abs(basePath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		backend, _ := cmd.Flags().GetString("backend")
		dsn, _ := cmd.Flags().GetString("dsn")
		size, _ := cmd.Flags().GetInt("page-size")

		result, err := WorkspaceInit.Init(core.InitConfig{
			BasePath: absPath,
			Backend:  backend,
			DSN:      dsn,
			PageSize: size,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(result.Created) > 0 {
			fmt.Fprintln(out, "Created:")
			for _, p := range result.Created {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Fprintf(out, "  %s\n", rel)
			}
		}
		if len(result.Skipped) > 0 {
			fmt.Fprintln(out, "Skipped (already exist):")
			for _, p := range result.Skipped {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Fprintf(out, "  %s\n", rel)
			}
		}

		fmt.Fprintf(out, "\nWorkspace initialized at %s\n", absPath)
		return nil
	},
}

func init() {
	initCmd.Flags().String("backend", "file", "Task store backend: file or postgres")
	initCmd.Flags().String("dsn", "", "Postgres connection string (postgres backend)")
	initCmd.Flags().Int("page-size", 20, "Default page size for task lists")
	rootCmd.AddCommand(initCmd)
}
