// internal/config/types.go

// Package config provides configuration types and loading for AdScrapexter.
// It covers the worklist store, browser engine, extraction pacing,
// session budget, continuation channel, monitoring and logging.
package config

import (
	"time"

	"github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/pkg/types"
)

// Config is the immutable configuration for one session.
type Config struct {
	// Mode selects which derived fields are filled
	Mode types.Mode `yaml:"mode" json:"mode" validate:"required,oneof=metadata video unified"`

	Store        StoreConfig        `yaml:"store" json:"store"`
	Layout       LayoutConfig       `yaml:"layout" json:"layout"`
	Browser      BrowserConfig      `yaml:"browser" json:"browser"`
	Extraction   ExtractionConfig   `yaml:"extraction" json:"extraction"`
	Session      SessionConfig      `yaml:"session" json:"session"`
	Continuation ContinuationConfig `yaml:"continuation" json:"continuation"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" json:"monitoring"`
	Logging      utils.LoggerConfig `yaml:"logging" json:"logging"`

	// StoreRetry governs retries of store reads and writes
	StoreRetry errors.RetryConfig `yaml:"store_retry" json:"store_retry"`

	// Schedule is an optional cron expression for daemon mode
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// StoreConfig selects and configures the worklist backend.
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend" validate:"required,oneof=sheets excel csv sqlite postgres mysql mongodb memory"`

	// sheets
	SpreadsheetID   string `yaml:"spreadsheet_id,omitempty" json:"spreadsheet_id,omitempty" validate:"required_if=Backend sheets"`
	Sheet           string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`

	// excel, csv, sqlite
	Path string `yaml:"path,omitempty" json:"path,omitempty" validate:"required_if=Backend excel,required_if=Backend csv"`

	// sqlite, postgres, mysql
	DSN   string `yaml:"dsn,omitempty" json:"dsn,omitempty" validate:"required_if=Backend postgres,required_if=Backend mysql"`
	Table string `yaml:"table,omitempty" json:"table,omitempty" validate:"omitempty,sqlident"`

	// mongodb
	URI        string `yaml:"uri,omitempty" json:"uri,omitempty" validate:"required_if=Backend mongodb"`
	Database   string `yaml:"database,omitempty" json:"database,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// LayoutConfig maps logical columns to spreadsheet-style letters.
type LayoutConfig struct {
	Advertiser string `yaml:"advertiser" json:"advertiser" validate:"omitempty,column"`
	URL        string `yaml:"url" json:"url" validate:"required,column"`
	Link       string `yaml:"link" json:"link" validate:"required,column"`
	Name       string `yaml:"name" json:"name" validate:"required,column"`
	Video      string `yaml:"video" json:"video" validate:"required,column"`
}

// BrowserConfig configures the shared browser process.
type BrowserConfig struct {
	Engine      string `yaml:"engine" json:"engine" validate:"oneof=chromedp rod"`
	Headless    bool   `yaml:"headless" json:"headless"`
	NoSandbox   bool   `yaml:"no_sandbox" json:"no_sandbox"`
	RemoteURL   string `yaml:"remote_url,omitempty" json:"remote_url,omitempty" validate:"omitempty,url"`
	ExecPath    string `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
	UserDataDir string `yaml:"user_data_dir,omitempty" json:"user_data_dir,omitempty"`
	// AcceptLanguage is sent as a header and reported by navigator.languages
	AcceptLanguage string `yaml:"accept_language" json:"accept_language"`
}

// ExtractionConfig holds per-item pacing and bounds.
type ExtractionConfig struct {
	BatchWidth           int           `yaml:"batch_width" json:"batch_width" validate:"min=1,max=16"`
	NavigationTimeout    time.Duration `yaml:"navigation_timeout" json:"navigation_timeout" validate:"min=1s"`
	ClickWait            time.Duration `yaml:"click_wait" json:"click_wait" validate:"min=0"`
	PollInterval         time.Duration `yaml:"poll_interval" json:"poll_interval" validate:"min=10ms"`
	MaxAttempts          int           `yaml:"max_attempts" json:"max_attempts" validate:"min=1,max=10"`
	BackoffBase          time.Duration `yaml:"backoff_base" json:"backoff_base" validate:"min=0"`
	BackoffMultiplier    float64       `yaml:"backoff_multiplier" json:"backoff_multiplier" validate:"gte=1"`
	RetryJitter          time.Duration `yaml:"retry_jitter" json:"retry_jitter" validate:"min=0"`
	BatchDelayMin        time.Duration `yaml:"batch_delay_min" json:"batch_delay_min" validate:"min=0"`
	BatchDelayMax        time.Duration `yaml:"batch_delay_max" json:"batch_delay_max" validate:"gtefield=BatchDelayMin"`
	StaggerMax           time.Duration `yaml:"stagger_max" json:"stagger_max" validate:"min=0"`
	MinFrameSize         float64       `yaml:"min_frame_size" json:"min_frame_size" validate:"gte=0"`
	NavigationsPerSecond float64       `yaml:"navigations_per_second" json:"navigations_per_second" validate:"gte=0"`
	// MaxScopeDepth bounds frame and shadow-root descent
	MaxScopeDepth int `yaml:"max_scope_depth" json:"max_scope_depth" validate:"min=1,max=64"`
}

// SessionConfig bounds one process lifetime.
type SessionConfig struct {
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration" validate:"min=1m"`
	// ID identifies the session in continuation signals; generated when empty
	ID string `yaml:"id,omitempty" json:"id,omitempty"`
}

// ContinuationConfig selects the hand-off channel.
type ContinuationConfig struct {
	Backend    string        `yaml:"backend" json:"backend" validate:"oneof=github webhook redis log none"`
	Repository string        `yaml:"repository,omitempty" json:"repository,omitempty" validate:"required_if=Backend github"`
	Token      string        `yaml:"token,omitempty" json:"-"`
	EventType  string        `yaml:"event_type" json:"event_type"`
	URL        string        `yaml:"url,omitempty" json:"url,omitempty" validate:"required_if=Backend webhook"`
	RedisAddr  string        `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty" validate:"required_if=Backend redis"`
	Channel    string        `yaml:"channel,omitempty" json:"channel,omitempty"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// MonitoringConfig controls the metrics and health endpoint.
type MonitoringConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Listen    string `yaml:"listen" json:"listen" validate:"required_if=Enabled true"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	return Config{
		Mode: types.ModeUnified,
		Store: StoreConfig{
			Backend:         "sheets",
			Sheet:           "Sheet1",
			CredentialsFile: "credentials.json",
			Table:           "worklist",
			Database:        "adscrapexter",
			Collection:      "worklist",
			Timeout:         30 * time.Second,
		},
		Layout: LayoutConfig{
			Advertiser: "A",
			URL:        "B",
			Link:       "C",
			Name:       "D",
			Video:      "E",
		},
		Browser: BrowserConfig{
			Engine:         "chromedp",
			Headless:       true,
			NoSandbox:      true,
			AcceptLanguage: "en-US,en;q=0.9",
		},
		Extraction: ExtractionConfig{
			BatchWidth:           2,
			NavigationTimeout:    60 * time.Second,
			ClickWait:            12 * time.Second,
			PollInterval:         2 * time.Second,
			MaxAttempts:          3,
			BackoffBase:          2 * time.Second,
			BackoffMultiplier:    1.5,
			RetryJitter:          2 * time.Second,
			BatchDelayMin:        5 * time.Second,
			BatchDelayMax:        12 * time.Second,
			StaggerMax:           2 * time.Second,
			MinFrameSize:         50,
			NavigationsPerSecond: 1,
			MaxScopeDepth:        8,
		},
		Session: SessionConfig{
			MaxDuration: 330 * time.Minute,
		},
		Continuation: ContinuationConfig{
			Backend:   "log",
			EventType: "unified_agent_trigger",
			Channel:   "adscrapexter:continuation",
			Timeout:   10 * time.Second,
		},
		Monitoring: MonitoringConfig{
			Listen:    ":9090",
			Namespace: "adscrapexter",
		},
		Logging: utils.LoggerConfig{
			Level:  "info",
			Format: "console",
		},
		StoreRetry: errors.DefaultRetryConfig(),
	}
}
