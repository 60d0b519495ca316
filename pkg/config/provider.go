package config

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"unicode/utf8"
)

// Default values applied by Validate.
const (
	DefaultTimeColumn  = "Time"
	DefaultEndBoundary = "windowed"
	DefaultServerPort  = 8080
)

// ErrNoConfig is returned by a provider that holds no configuration yet.
var ErrNoConfig = errors.New("no configuration stored")

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Analysis AnalysisData `json:"analysis"`
	Input    InputData    `json:"input"`
	Storage  StorageData  `json:"storage,omitempty"`
	Server   ServerData   `json:"server,omitempty"`
}

// AnalysisData configures disturbance and effect detection for a batch.
type AnalysisData struct {
	DisturbanceCandidates []string     `json:"disturbance_candidates"`
	Metrics               []MetricData `json:"metrics"`
	EndBoundary           string       `json:"end_boundary,omitempty"`
	RelativeBand          bool         `json:"relative_band,omitempty"`
	Smoothing             int          `json:"smoothing,omitempty"`
	Workers               int          `json:"workers,omitempty"`
	IgnoreColumns         []string     `json:"ignore_columns,omitempty"`
	StrictParameters      bool         `json:"strict_parameters,omitempty"`
}

// MetricData names one tracked performance metric and its tolerance band.
type MetricData struct {
	Name   string  `json:"name"`
	Column string  `json:"column"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// InputData describes where simulation exports are read from.
type InputData struct {
	Path         string `json:"path,omitempty"`
	TimeColumn   string `json:"time_column,omitempty"`
	Delimiter    string `json:"delimiter,omitempty"`
	DecimalComma bool   `json:"decimal_comma,omitempty"`
	RunPattern   string `json:"run_pattern,omitempty"`
}

// StorageData holds the configuration for the result stores. Both may be
// enabled at once.
type StorageData struct {
	SQLite   *SQLiteData   `json:"sqlite,omitempty"`
	Postgres *PostgresData `json:"postgres,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type PostgresData struct {
	ConnectionString string `json:"connection_string"`
}

// ServerData configures the REST API.
type ServerData struct {
	Enabled    bool   `json:"enabled,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
}

// Validate fills in defaults and rejects configurations the analysis
// cannot run with.
func (c *ConfigData) Validate() error {
	a := &c.Analysis
	if len(a.DisturbanceCandidates) == 0 {
		return errors.New("analysis: at least one disturbance candidate column is required")
	}
	if len(a.Metrics) == 0 {
		return errors.New("analysis: at least one metric is required")
	}

	seen := make(map[string]bool, len(a.Metrics))
	for i, m := range a.Metrics {
		switch {
		case m.Name == "":
			return fmt.Errorf("analysis: metric %d has no name", i)
		case m.Column == "":
			return fmt.Errorf("analysis: metric %q has no column", m.Name)
		case seen[m.Name]:
			return fmt.Errorf("analysis: duplicate metric name %q", m.Name)
		case m.Lower > m.Upper:
			return fmt.Errorf("analysis: metric %q has lower bound %v above upper bound %v", m.Name, m.Lower, m.Upper)
		}
		seen[m.Name] = true
	}

	switch a.EndBoundary {
	case "":
		a.EndBoundary = DefaultEndBoundary
	case "windowed", "legacy":
	default:
		return fmt.Errorf("analysis: unknown end boundary %q", a.EndBoundary)
	}

	if a.Smoothing < 0 || (a.Smoothing > 0 && a.Smoothing%2 == 0) {
		return fmt.Errorf("analysis: smoothing kernel must be 0 or a positive odd number, got %d", a.Smoothing)
	}
	if a.Workers < 0 {
		return fmt.Errorf("analysis: workers must not be negative, got %d", a.Workers)
	}
	if a.Workers == 0 {
		a.Workers = runtime.NumCPU()
	}

	if c.Input.TimeColumn == "" {
		c.Input.TimeColumn = DefaultTimeColumn
	}
	if c.Input.Delimiter != "" && utf8.RuneCountInString(c.Input.Delimiter) != 1 {
		return fmt.Errorf("input: delimiter must be a single character, got %q", c.Input.Delimiter)
	}
	if c.Input.RunPattern != "" {
		re, err := regexp.Compile(c.Input.RunPattern)
		if err != nil {
			return fmt.Errorf("input: run pattern: %w", err)
		}
		if re.NumSubexp() != 2 {
			return fmt.Errorf("input: run pattern needs two groups (run number, signal), has %d", re.NumSubexp())
		}
	}

	if c.Storage.SQLite != nil && c.Storage.SQLite.Path == "" {
		return errors.New("storage: sqlite path is required")
	}
	if c.Storage.Postgres != nil && c.Storage.Postgres.ConnectionString == "" {
		return errors.New("storage: postgres connection string is required")
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		return errors.New("server: cert and key must be set together")
	}
	return nil
}

// DelimiterRune returns the configured field separator, or 0 for the
// reader's default.
func (i InputData) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(i.Delimiter)
	if r == utf8.RuneError {
		return 0
	}
	return r
}
