// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/valpere/AdScrapexter/internal/errors"
)

// Environment overrides honored on top of the YAML file
const (
	EnvConcurrentPages = "CONCURRENT_PAGES"
	EnvBatchDelayMin   = "BATCH_DELAY_MIN"
	EnvBatchDelayMax   = "BATCH_DELAY_MAX"
	EnvGitHubToken     = "GH_TOKEN"
	EnvGitHubRepo      = "GITHUB_REPOSITORY"
)

// LoadDotEnv loads .env files into the process environment. Missing
// files are ignored; variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return errors.Wrap(errors.KindConfig, err, "failed to load .env")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, errors.New(errors.KindConfig, "configuration filename cannot be empty")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.KindConfig, "configuration file not found: %s", filename)
		}
		return nil, errors.Wrap(errors.KindConfig, err, "failed to read configuration file")
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes. Values start from
// DefaultConfig, so omitted keys keep their defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	// ${VAR} references are expanded before parsing
	expanded := os.ExpandEnv(string(data))
	if strings.TrimSpace(expanded) != "" {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, err, "failed to parse YAML configuration")
		}
	}

	if err := applyEnvOverrides(&cfg, os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, errors.New(errors.KindConfig, "reader cannot be nil")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, err, "failed to read from reader")
	}
	return LoadFromBytes(data)
}

// SaveToFile writes cfg as YAML
func SaveToFile(cfg *Config, filename string) error {
	if cfg == nil {
		return errors.New(errors.KindConfig, "configuration cannot be nil")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}

// applyEnvOverrides applies the worker-count and pacing variables.
// Delays are given in milliseconds.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvConcurrentPages); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return errors.Newf(errors.KindConfig, "%s must be a positive integer, got %q", EnvConcurrentPages, v)
		}
		cfg.Extraction.BatchWidth = n
	}
	if v := getenv(EnvBatchDelayMin); v != "" {
		d, err := parseMillis(EnvBatchDelayMin, v)
		if err != nil {
			return err
		}
		cfg.Extraction.BatchDelayMin = d
	}
	if v := getenv(EnvBatchDelayMax); v != "" {
		d, err := parseMillis(EnvBatchDelayMax, v)
		if err != nil {
			return err
		}
		cfg.Extraction.BatchDelayMax = d
	}
	if cfg.Continuation.Token == "" {
		cfg.Continuation.Token = getenv(EnvGitHubToken)
	}
	if cfg.Continuation.Repository == "" {
		cfg.Continuation.Repository = getenv(EnvGitHubRepo)
	}
	return nil
}

func parseMillis(name, v string) (time.Duration, error) {
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return 0, errors.Newf(errors.KindConfig, "%s must be a non-negative number of milliseconds, got %q", name, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// GenerateTemplate returns a commented YAML template for the given backend
func GenerateTemplate(backend string) string {
	cfg := DefaultConfig()
	switch strings.ToLower(backend) {
	case "excel":
		cfg.Store.Backend = "excel"
		cfg.Store.Path = "worklist.xlsx"
	case "csv":
		cfg.Store.Backend = "csv"
		cfg.Store.Path = "worklist.csv"
	case "sqlite":
		cfg.Store.Backend = "sqlite"
		cfg.Store.DSN = "worklist.db"
	case "postgres":
		cfg.Store.Backend = "postgres"
		cfg.Store.DSN = "${DATABASE_URL}"
	case "mongodb":
		cfg.Store.Backend = "mongodb"
		cfg.Store.URI = "${MONGODB_URI}"
	default:
		cfg.Store.SpreadsheetID = "${SPREADSHEET_ID}"
		cfg.Continuation.Backend = "github"
		cfg.Continuation.Repository = "${GITHUB_REPOSITORY}"
		cfg.Continuation.Token = "${GH_TOKEN}"
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ""
	}
	header := "# AdScrapexter configuration\n" +
		"# Durations use Go syntax (60s, 5h30m). ${VAR} references are expanded.\n" +
		"# CONCURRENT_PAGES, BATCH_DELAY_MIN and BATCH_DELAY_MAX (ms) override extraction settings.\n"
	return header + string(data)
}
