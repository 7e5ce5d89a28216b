package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/internal/observability"
	"github.com/valter-silva-au/opsboard/internal/storage"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

const testBusinesses = `version: "1.0"
businesses:
  - id: b-1
    name: Acme Solar
    locality: Springfield
    category: subsidy 2026
  - id: b-2
    name: Brightside Farm
    category: self-pay
`

// eventLogWriter forwards task store events into an observability.EventLog.
type eventLogWriter struct {
	log observability.EventLog
}

func (w *eventLogWriter) LogEvent(eventType string, data map[string]any) error {
	return w.log.Write(observability.NewTaskEvent(eventType, data, time.Now()))
}

// setupCLI points the package-level services at a fresh workspace and
// restores the previous values when the test ends.
func setupCLI(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "businesses.yaml"), []byte(testBusinesses), 0o600); err != nil {
		t.Fatal(err)
	}

	evlog, err := observability.NewJSONLEventLog(filepath.Join(base, ".opsb_events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = evlog.Close() })

	classifier, err := core.NewDelayClassifier(nil)
	if err != nil {
		t.Fatal(err)
	}

	origStore, origBiz, origLog, origAlerts, origMetrics, origNotifier, origConfig :=
		TaskStore, Businesses, EventLog, AlertEngine, MetricsCalc, Notifier, Config
	t.Cleanup(func() {
		TaskStore, Businesses, EventLog, AlertEngine, MetricsCalc, Notifier, Config =
			origStore, origBiz, origLog, origAlerts, origMetrics, origNotifier, origConfig
	})

	TaskStore = core.NewTaskStore(storage.NewFileTaskStore(base), core.MustStepRegistry(), classifier, &eventLogWriter{log: evlog})
	Businesses = storage.NewFileBusinessDirectory(base)
	EventLog = evlog
	AlertEngine = observability.NewAlertEngine(evlog, observability.DefaultAlertThresholds())
	MetricsCalc = observability.NewMetricsCalculator(evlog)
	Notifier = nil
	Config = core.DefaultGlobalConfig()
	return base
}

// runCLI executes the root command with args and returns its output.
// Flag values persist between executions of the same command tree, so every
// flag is reset to its default first.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func seedTask(t *testing.T, task models.TaskRecord) models.TaskRecord {
	t.Helper()
	created, err := TaskStore.Create(context.Background(), core.CreateCommand{Task: task})
	if err != nil {
		t.Fatalf("seeding task: %v", err)
	}
	return *created
}

func permitTask(businessID, name string) models.TaskRecord {
	return models.TaskRecord{
		Title:          "Permit Application",
		Business:       models.BusinessKey{BusinessID: businessID, BusinessName: name},
		Classification: models.ClassSelf,
		Step:           "permit",
		Priority:       models.PriorityMedium,
	}
}
