package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/opsboard/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task board over HTTP",
	Long: `Start the JSON HTTP API for the task board.

Errors are returned as RFC 7807 problem documents carrying the task error
kind, so clients can offer "retry" or "confirm override" without parsing
messages. The server shuts down gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}

		addr := serveAddr
		if !cmd.Flags().Changed("addr") && Config != nil && Config.APIAddr != "" {
			addr = Config.APIAddr
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		opts := []api.Option{api.WithLogger(logger), api.WithPageSize(pageSize())}
		if Businesses != nil {
			opts = append(opts, api.WithBusinesses(Businesses))
		}
		srv := api.NewServer(TaskStore, opts...)

		ctx, stop := interruptContext(cmd)
		defer stop()

		logger.Info("serving task board", "addr", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}

// interruptContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func interruptContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
