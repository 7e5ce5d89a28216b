package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// InitConfig holds the parameters for initializing a board workspace.
type InitConfig struct {
	BasePath string
	Backend  string // file or postgres
	DSN      string
	PageSize int
}

// InitResult holds a summary of what was created vs. skipped.
type InitResult struct {
	Created []string
	Skipped []string
}

// WorkspaceInitializer lays out a new board workspace: configuration, an
// empty task file and an empty business directory.
type WorkspaceInitializer interface {
	Init(config InitConfig) (*InitResult, error)
}

type workspaceInitializer struct{}

// NewWorkspaceInitializer creates a new WorkspaceInitializer.
func NewWorkspaceInitializer() WorkspaceInitializer {
	return &workspaceInitializer{}
}

var opsconfigTemplate = template.Must(template.New("opsconfig").Parse(`# opsb configuration
store:
  backend: {{ .Backend }}
{{- if .DSN }}
  dsn: {{ printf "%q" .DSN }}
{{- end }}

board:
  page_size: {{ .PageSize }}

api:
  addr: ":8080"

alerts:
  max_open_tasks: 200

business:
  cache_ttl: 5m

notifications:
  enabled: false
  slack:
    webhook_url: ""

# Per-classification SLA overrides in days since start date, e.g.
# sla:
#   self:
#     warning_days: 7
#     critical_days: 14
#     overdue_days: 30
`))

const (
	emptyTaskFile     = "version: \"1.0\"\ntasks: []\n"
	emptyBusinessFile = "version: \"1.0\"\nbusinesses: []\n"
	workspaceIgnore   = ".opsb_events.jsonl\ntasks.yaml.lock\n"
)

// Init creates the workspace files. It is safe to run on an existing
// workspace: files that already exist are skipped and not overwritten.
func (wi *workspaceInitializer) Init(config InitConfig) (*InitResult, error) {
	result := &InitResult{}

	if config.Backend == "" {
		config.Backend = "file"
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultGlobalConfig().PageSize
	}
	cfg := DefaultGlobalConfig()
	cfg.Store.Backend = config.Backend
	cfg.Store.DSN = config.DSN
	cfg.PageSize = config.PageSize
	if err := validateGlobalConfig(cfg); err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}

	created, err := ensureDir(config.BasePath)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: creating directory %s: %w", config.BasePath, err)
	}
	if created {
		result.Created = append(result.Created, config.BasePath)
	} else {
		result.Skipped = append(result.Skipped, config.BasePath)
	}

	files := []struct {
		name    string
		content func() ([]byte, error)
	}{
		{ConfigFileName + ".yaml", func() ([]byte, error) { return renderTemplate(opsconfigTemplate, config) }},
		{"tasks.yaml", static(emptyTaskFile)},
		{"businesses.yaml", static(emptyBusinessFile)},
		{".gitignore", static(workspaceIgnore)},
	}
	for _, f := range files {
		if err := writeFileIfNotExists(filepath.Join(config.BasePath, f.name), f.content, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func static(s string) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte(s), nil }
}

// ensureDir creates a directory if it does not exist. Returns true if created.
func ensureDir(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileIfNotExists writes content from contentFn if the file does not exist.
// It records created/skipped in the result.
func writeFileIfNotExists(path string, contentFn func() ([]byte, error), result *InitResult) error {
	if _, err := os.Stat(path); err == nil {
		result.Skipped = append(result.Skipped, path)
		return nil
	}
	content, err := contentFn()
	if err != nil {
		return fmt.Errorf("initializing workspace: generating content for %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("initializing workspace: writing %s: %w", path, err)
	}
	result.Created = append(result.Created, path)
	return nil
}

func renderTemplate(tmpl *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering template %s: %w", tmpl.Name(), err)
	}
	return buf.Bytes(), nil
}
