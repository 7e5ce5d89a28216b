// Package internal provides the App struct that wires all components of the
// opsboard system together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valter-silva-au/opsboard/internal/cli"
	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/internal/observability"
	"github.com/valter-silva-au/opsboard/internal/storage"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

// EventLogFileName is the JSONL event log kept in the base directory.
const EventLogFileName = ".opsb_events.jsonl"

// businessCacheSize bounds the number of cached business accounts.
const businessCacheSize = 10_000

// App holds all service dependencies for the opsboard system.
type App struct {
	BasePath string
	Config   *models.GlobalConfig
	Logger   *slog.Logger

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	Records    core.RecordStore
	Businesses core.BusinessLookup
	pool       *pgxpool.Pool
	bizCache   *storage.CachedBusinessLookup

	// Core services
	Registry      *core.StepRegistry
	Classifier    *core.DelayClassifier
	TaskStore     *core.TaskStore
	WorkspaceInit core.WorkspaceInitializer

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of the opsboard system.
// basePath is the directory holding .opsconfig.yaml, tasks.yaml and
// businesses.yaml (typically found by ResolveBasePath).
func NewApp(ctx context.Context, basePath string) (*App, error) {
	app := &App{
		BasePath: basePath,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Storage layer ---
	switch cfg.Store.Backend {
	case "postgres":
		if err := storage.RunMigrations(ctx, cfg.Store.DSN); err != nil {
			return nil, fmt.Errorf("migrating task database: %w", err)
		}
		app.pool, err = storage.NewPool(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to task database: %w", err)
		}
		app.Records = storage.NewPostgresTaskStore(app.pool)
	default:
		app.Records = storage.NewFileTaskStore(basePath)
	}

	directory := storage.NewFileBusinessDirectory(basePath)
	app.Businesses = directory
	if cfg.BusinessTTL > 0 {
		app.bizCache, err = storage.NewCachedBusinessLookup(directory, businessCacheSize, cfg.BusinessTTL)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Businesses = app.bizCache
	}

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, EventLogFileName))
	if err != nil {
		// Non-fatal: run without events, metrics and rollback alerts.
		app.Logger.Warn("event log disabled", "error", err)
		app.EventLog = nil
	}

	thresholds := observability.DefaultAlertThresholds()
	if cfg.MaxOpenTasks > 0 {
		thresholds.MaxOpenTasks = cfg.MaxOpenTasks
	}
	app.AlertEngine = observability.NewAlertEngine(app.EventLog, thresholds)
	if app.EventLog != nil {
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.SlackWebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.SlackWebhookURL)
	}

	// --- Core services ---
	app.Registry, err = core.NewStepRegistry()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("building step registry: %w", err)
	}
	app.Classifier, err = core.NewDelayClassifier(cfg.SLA)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("configuring SLA thresholds: %w", err)
	}

	var evtAdapter core.EventLogger
	if app.EventLog != nil {
		evtAdapter = &eventLogAdapter{log: app.EventLog}
	}
	app.TaskStore = core.NewTaskStore(app.Records, app.Registry, app.Classifier, evtAdapter)
	app.WorkspaceInit = core.NewWorkspaceInitializer()

	// A failed initial load leaves an empty snapshot; commands that need
	// fresh data refresh again.
	if _, err := app.TaskStore.Refresh(ctx); err != nil {
		app.Logger.Warn("loading tasks failed", "error", err)
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.TaskStore = app.TaskStore
	cli.Businesses = app.Businesses
	cli.WorkspaceInit = app.WorkspaceInit
	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// Close releases resources held by the App.
func (a *App) Close() error {
	if a.bizCache != nil {
		a.bizCache.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the base directory for opsboard data.
// It checks for OPSB_HOME env var, then walks up from the current directory
// looking for .opsconfig.yaml, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("OPSB_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.NewTaskEvent(eventType, data, time.Now()))
}
