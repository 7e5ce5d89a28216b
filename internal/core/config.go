// Package core contains the business logic for opsboard, including the
// step registry, progress and SLA derivation, duplicate detection, step
// transitions, filtering, kanban aggregation, the optimistic task store
// and configuration.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// ConfigFileName is the base name of the global configuration file. Viper
// resolves the extension, so .opsconfig.yaml is the usual file on disk.
const ConfigFileName = ".opsconfig"

// ConfigurationManager defines the interface for loading and validating
// configuration from the global .opsconfig file.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the root directory where .opsconfig resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns a GlobalConfig populated with defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		Store:        models.StoreConfig{Backend: "file"},
		PageSize:     20,
		APIAddr:      ":8080",
		MaxOpenTasks: 200,
		BusinessTTL:  5 * time.Minute,
	}
}

// LoadGlobalConfig reads the .opsconfig file from the base path using Viper.
// If the file does not exist, defaults are returned.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.dsn", "")
	v.SetDefault("board.page_size", cfg.PageSize)
	v.SetDefault("api.addr", cfg.APIAddr)
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.slack.webhook_url", "")
	v.SetDefault("alerts.max_open_tasks", cfg.MaxOpenTasks)
	v.SetDefault("business.cache_ttl", cfg.BusinessTTL)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	cfg.Store.Backend = strings.ToLower(v.GetString("store.backend"))
	cfg.Store.DSN = v.GetString("store.dsn")
	cfg.PageSize = v.GetInt("board.page_size")
	cfg.APIAddr = v.GetString("api.addr")
	cfg.Notifications.Enabled = v.GetBool("notifications.enabled")
	cfg.Notifications.SlackWebhookURL = v.GetString("notifications.slack.webhook_url")
	cfg.MaxOpenTasks = v.GetInt("alerts.max_open_tasks")
	cfg.BusinessTTL = v.GetDuration("business.cache_ttl")

	// Only classifications present in the file are overrides; the rest
	// keep the built-in thresholds.
	for key := range v.GetStringMap("sla") {
		var t models.SLAThresholds
		if err := v.UnmarshalKey("sla."+key, &t); err != nil {
			return nil, fmt.Errorf("reading sla.%s: %w", key, err)
		}
		if cfg.SLA == nil {
			cfg.SLA = make(map[models.Classification]models.SLAThresholds)
		}
		cfg.SLA[models.Classification(key)] = t
	}

	return cfg, nil
}

// ValidateConfig checks the provided configuration for invalid values and
// returns an error listing every problem found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	return validateGlobalConfig(cfg)
}

// validateGlobalConfig checks a GlobalConfig for invalid field values.
func validateGlobalConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("global configuration is nil")
	}

	var errs []string

	switch cfg.Store.Backend {
	case "file":
	case "postgres":
		if cfg.Store.DSN == "" {
			errs = append(errs, "store.dsn must be set when store.backend is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q is invalid, must be one of: file, postgres", cfg.Store.Backend))
	}

	if cfg.PageSize < 1 {
		errs = append(errs, fmt.Sprintf("board.page_size must be at least 1, got %d", cfg.PageSize))
	}

	if cfg.MaxOpenTasks < 0 {
		errs = append(errs, fmt.Sprintf("alerts.max_open_tasks must be non-negative, got %d", cfg.MaxOpenTasks))
	}

	if cfg.BusinessTTL < 0 {
		errs = append(errs, fmt.Sprintf("business.cache_ttl must be non-negative, got %s", cfg.BusinessTTL))
	}

	if cfg.Notifications.Enabled && cfg.Notifications.SlackWebhookURL == "" {
		errs = append(errs, "notifications.slack.webhook_url must be set when notifications are enabled")
	}

	for c, t := range cfg.SLA {
		if !c.Valid() {
			errs = append(errs, fmt.Sprintf("sla.%s is not a known classification", c))
			continue
		}
		if err := ValidateThresholds(t); err != nil {
			errs = append(errs, fmt.Sprintf("sla.%s: %v", c, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("global config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
