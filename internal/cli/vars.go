package cli

import (
	"context"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/internal/observability"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	TaskStore  *core.TaskStore
	Businesses core.BusinessLookup
	Config     *models.GlobalConfig
	BasePath   string
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

func pageSize() int {
	if Config != nil && Config.PageSize > 0 {
		return Config.PageSize
	}
	return 20
}

// rootContext is the context for work started outside a command's RunE,
// such as TUI commands.
func rootContext() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
