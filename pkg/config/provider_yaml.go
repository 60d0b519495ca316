package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// Filename returns the path the provider reads from.
func (y *YAMLProvider) Filename() string {
	return y.filename
}

// LoadConfig reads the file on every call so that a watcher can pick up
// edits.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	return ParseYAML(cfgFile)
}

// ParseYAML decodes a configuration document. Unknown keys are rejected so
// that a misspelt threshold does not silently fall back to zero.
func ParseYAML(data []byte) (*ConfigData, error) {
	var doc configYAML

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty configuration")
		}
		return nil, err
	}

	config := &ConfigData{
		Analysis: AnalysisData{
			DisturbanceCandidates: doc.Analysis.DisturbanceCandidates,
			EndBoundary:           doc.Analysis.EndBoundary,
			RelativeBand:          doc.Analysis.RelativeBand,
			Smoothing:             doc.Analysis.Smoothing,
			Workers:               doc.Analysis.Workers,
			IgnoreColumns:         doc.Analysis.IgnoreColumns,
			StrictParameters:      doc.Analysis.StrictParameters,
			Metrics:               make([]MetricData, len(doc.Analysis.Metrics)),
		},
		Input: InputData{
			Path:         doc.Input.Path,
			TimeColumn:   doc.Input.TimeColumn,
			Delimiter:    doc.Input.Delimiter,
			DecimalComma: doc.Input.DecimalComma,
			RunPattern:   doc.Input.RunPattern,
		},
		Server: ServerData{
			Enabled:    doc.Server.Enabled,
			ListenAddr: doc.Server.ListenAddr,
			Port:       doc.Server.Port,
			Cert:       doc.Server.Cert,
			Key:        doc.Server.Key,
			EnableCORS: doc.Server.EnableCORS,
		},
	}

	for i, m := range doc.Analysis.Metrics {
		config.Analysis.Metrics[i] = MetricData{
			Name:   m.Name,
			Column: m.Column,
			Lower:  m.Lower,
			Upper:  m.Upper,
		}
	}

	if doc.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{Path: doc.Storage.SQLite.Path}
	}
	if doc.Storage.Postgres != nil {
		config.Storage.Postgres = &PostgresData{ConnectionString: doc.Storage.Postgres.ConnectionString}
	}

	return config, nil
}

// MarshalYAML renders config in the file format ParseYAML reads.
func MarshalYAML(config *ConfigData) ([]byte, error) {
	doc := configYAML{
		Analysis: analysisYAML{
			DisturbanceCandidates: config.Analysis.DisturbanceCandidates,
			EndBoundary:           config.Analysis.EndBoundary,
			RelativeBand:          config.Analysis.RelativeBand,
			Smoothing:             config.Analysis.Smoothing,
			Workers:               config.Analysis.Workers,
			IgnoreColumns:         config.Analysis.IgnoreColumns,
			StrictParameters:      config.Analysis.StrictParameters,
		},
		Input: inputYAML(config.Input),
		Server: serverYAML{
			Enabled:    config.Server.Enabled,
			ListenAddr: config.Server.ListenAddr,
			Port:       config.Server.Port,
			Cert:       config.Server.Cert,
			Key:        config.Server.Key,
			EnableCORS: config.Server.EnableCORS,
		},
	}
	for _, m := range config.Analysis.Metrics {
		doc.Analysis.Metrics = append(doc.Analysis.Metrics, metricYAML(m))
	}
	if config.Storage.SQLite != nil {
		doc.Storage.SQLite = &sqliteYAML{Path: config.Storage.SQLite.Path}
	}
	if config.Storage.Postgres != nil {
		doc.Storage.Postgres = &postgresYAML{ConnectionString: config.Storage.Postgres.ConnectionString}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with the file's kebab-case keys
type configYAML struct {
	Analysis analysisYAML `yaml:"analysis"`
	Input    inputYAML    `yaml:"input,omitempty"`
	Storage  storageYAML  `yaml:"storage,omitempty"`
	Server   serverYAML   `yaml:"server,omitempty"`
}

type analysisYAML struct {
	DisturbanceCandidates []string     `yaml:"disturbance-candidates"`
	Metrics               []metricYAML `yaml:"metrics"`
	EndBoundary           string       `yaml:"end-boundary,omitempty"`
	RelativeBand          bool         `yaml:"relative-band,omitempty"`
	Smoothing             int          `yaml:"smoothing,omitempty"`
	Workers               int          `yaml:"workers,omitempty"`
	IgnoreColumns         []string     `yaml:"ignore-columns,omitempty"`
	StrictParameters      bool         `yaml:"strict-parameters,omitempty"`
}

type metricYAML struct {
	Name   string  `yaml:"name"`
	Column string  `yaml:"column"`
	Lower  float64 `yaml:"lower"`
	Upper  float64 `yaml:"upper"`
}

type inputYAML struct {
	Path         string `yaml:"path,omitempty"`
	TimeColumn   string `yaml:"time-column,omitempty"`
	Delimiter    string `yaml:"delimiter,omitempty"`
	DecimalComma bool   `yaml:"decimal-comma,omitempty"`
	RunPattern   string `yaml:"run-pattern,omitempty"`
}

type storageYAML struct {
	SQLite   *sqliteYAML   `yaml:"sqlite,omitempty"`
	Postgres *postgresYAML `yaml:"postgres,omitempty"`
}

type sqliteYAML struct {
	Path string `yaml:"path"`
}

type postgresYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type serverYAML struct {
	Enabled    bool   `yaml:"enabled,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	EnableCORS bool   `yaml:"enable-cors,omitempty"`
}
