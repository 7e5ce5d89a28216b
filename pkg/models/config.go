package models

import "time"

// SLAThresholds holds the day counts at which a task becomes at risk,
// delayed and overdue. Values must be strictly increasing.
type SLAThresholds struct {
	WarningDays  int `yaml:"warning_days" mapstructure:"warning_days"`
	CriticalDays int `yaml:"critical_days" mapstructure:"critical_days"`
	OverdueDays  int `yaml:"overdue_days" mapstructure:"overdue_days"`
}

// StoreConfig selects and configures the task record store.
type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // file or postgres
	DSN     string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// NotificationConfig controls outbound alert notifications.
type NotificationConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	SlackWebhookURL string `yaml:"slack_webhook_url,omitempty" mapstructure:"slack_webhook_url"`
}

// GlobalConfig holds system-wide settings read from .opsconfig via Viper.
type GlobalConfig struct {
	Store         StoreConfig                      `yaml:"store" mapstructure:"store"`
	PageSize      int                              `yaml:"page_size" mapstructure:"page_size"`
	APIAddr       string                           `yaml:"api_addr" mapstructure:"api_addr"`
	SLA           map[Classification]SLAThresholds `yaml:"sla,omitempty" mapstructure:"sla"`
	Notifications NotificationConfig               `yaml:"notifications" mapstructure:"notifications"`
	MaxOpenTasks  int                              `yaml:"max_open_tasks" mapstructure:"max_open_tasks"`
	BusinessTTL   time.Duration                    `yaml:"business_cache_ttl" mapstructure:"business_cache_ttl"`
}
