package config

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/chrissnell/resilience/pkg/migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	defaultConfigName = "default"

	// MigrationTable records the schema version of a configuration database.
	MigrationTable = "config_schema_migrations"
)

// Migrations returns the embedded schema migrations of the configuration
// database.
func Migrations() *migrate.FileProvider {
	return migrate.NewFSProvider(migrationFiles, "migrations", MigrationTable)
}

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens the configuration database at dbPath and brings
// its schema up to date.
func NewSQLiteProvider(dbPath string, logger *zap.SugaredLogger) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := migrate.NewMigrator(db, Migrations(), logger).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate config database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	configID, err := s.configID()
	if err != nil {
		return nil, err
	}

	config := &ConfigData{}
	if err := s.loadSettings(configID, config); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	config.Analysis.DisturbanceCandidates, err = s.loadColumnList("disturbance_candidates", configID)
	if err != nil {
		return nil, fmt.Errorf("failed to load disturbance candidates: %w", err)
	}

	config.Analysis.IgnoreColumns, err = s.loadColumnList("ignored_columns", configID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignored columns: %w", err)
	}

	config.Analysis.Metrics, err = s.GetMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}

	return config, nil
}

func (s *SQLiteProvider) configID() (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM configs WHERE name = ?", defaultConfigName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoConfig
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query config: %w", err)
	}
	return id, nil
}

func (s *SQLiteProvider) loadSettings(configID int64, config *ConfigData) error {
	query := `
		SELECT end_boundary, relative_band, smoothing, workers, strict_parameters,
		       input_path, time_column, delimiter, decimal_comma, run_pattern,
		       sqlite_path, postgres_connection_string,
		       server_enabled, server_listen_addr, server_port, server_cert, server_key, server_enable_cors
		FROM settings
		WHERE config_id = ?
	`

	var endBoundary, inputPath, timeColumn, delimiter, runPattern sql.NullString
	var sqlitePath, postgresConn sql.NullString
	var listenAddr, cert, key sql.NullString
	var port sql.NullInt64

	a := &config.Analysis
	err := s.db.QueryRow(query, configID).Scan(
		&endBoundary, &a.RelativeBand, &a.Smoothing, &a.Workers, &a.StrictParameters,
		&inputPath, &timeColumn, &delimiter, &config.Input.DecimalComma, &runPattern,
		&sqlitePath, &postgresConn,
		&config.Server.Enabled, &listenAddr, &port, &cert, &key, &config.Server.EnableCORS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	a.EndBoundary = endBoundary.String
	config.Input.Path = inputPath.String
	config.Input.TimeColumn = timeColumn.String
	config.Input.Delimiter = delimiter.String
	config.Input.RunPattern = runPattern.String

	if sqlitePath.Valid && sqlitePath.String != "" {
		config.Storage.SQLite = &SQLiteData{Path: sqlitePath.String}
	}
	if postgresConn.Valid && postgresConn.String != "" {
		config.Storage.Postgres = &PostgresData{ConnectionString: postgresConn.String}
	}

	config.Server.ListenAddr = listenAddr.String
	config.Server.Cert = cert.String
	config.Server.Key = key.String
	if port.Valid {
		config.Server.Port = int(port.Int64)
	}
	return nil
}

func (s *SQLiteProvider) loadColumnList(table string, configID int64) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf("SELECT column_name FROM %s WHERE config_id = ? ORDER BY position", table), configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// GetMetrics returns the tracked metrics in their configured order.
func (s *SQLiteProvider) GetMetrics() ([]MetricData, error) {
	query := `
		SELECT name, column_name, lower_bound, upper_bound
		FROM tracked_metrics
		WHERE config_id = (SELECT id FROM configs WHERE name = ?)
		ORDER BY position
	`

	rows, err := s.db.Query(query, defaultConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []MetricData
	for rows.Next() {
		var m MetricData
		if err := rows.Scan(&m.Name, &m.Column, &m.Lower, &m.Upper); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData.
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.upsertConfig(tx, defaultConfigName)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	if err := s.clearExistingConfig(tx, configID); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	if err := s.insertSettings(tx, configID, configData); err != nil {
		return fmt.Errorf("failed to insert settings: %w", err)
	}

	if err := insertColumnList(tx, "disturbance_candidates", configID, configData.Analysis.DisturbanceCandidates); err != nil {
		return fmt.Errorf("failed to insert disturbance candidates: %w", err)
	}
	if err := insertColumnList(tx, "ignored_columns", configID, configData.Analysis.IgnoreColumns); err != nil {
		return fmt.Errorf("failed to insert ignored columns: %w", err)
	}

	for i, m := range configData.Analysis.Metrics {
		if _, err := tx.Exec(`
			INSERT INTO tracked_metrics (config_id, position, name, column_name, lower_bound, upper_bound)
			VALUES (?, ?, ?, ?, ?, ?)
		`, configID, i, m.Name, m.Column, m.Lower, m.Upper); err != nil {
			return fmt.Errorf("failed to insert metric %s: %w", m.Name, err)
		}
	}

	return tx.Commit()
}

// upsertConfig keeps the config row's id stable across saves.
func (s *SQLiteProvider) upsertConfig(tx *sql.Tx, name string) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO configs (name, created_at, updated_at) VALUES (?, datetime('now'), datetime('now'))
		ON CONFLICT(name) DO UPDATE SET updated_at = datetime('now')
	`, name)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := tx.QueryRow("SELECT id FROM configs WHERE name = ?", name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx, configID int64) error {
	queries := []string{
		"DELETE FROM settings WHERE config_id = ?",
		"DELETE FROM disturbance_candidates WHERE config_id = ?",
		"DELETE FROM tracked_metrics WHERE config_id = ?",
		"DELETE FROM ignored_columns WHERE config_id = ?",
	}

	for _, query := range queries {
		if _, err := tx.Exec(query, configID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteProvider) insertSettings(tx *sql.Tx, configID int64, c *ConfigData) error {
	query := `
		INSERT INTO settings (
			config_id, end_boundary, relative_band, smoothing, workers, strict_parameters,
			input_path, time_column, delimiter, decimal_comma, run_pattern,
			sqlite_path, postgres_connection_string,
			server_enabled, server_listen_addr, server_port, server_cert, server_key, server_enable_cors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var sqlitePath, postgresConn string
	if c.Storage.SQLite != nil {
		sqlitePath = c.Storage.SQLite.Path
	}
	if c.Storage.Postgres != nil {
		postgresConn = c.Storage.Postgres.ConnectionString
	}

	var port sql.NullInt64
	if c.Server.Port != 0 {
		port = sql.NullInt64{Int64: int64(c.Server.Port), Valid: true}
	}

	a := c.Analysis
	_, err := tx.Exec(query,
		configID, nullString(a.EndBoundary), a.RelativeBand, a.Smoothing, a.Workers, a.StrictParameters,
		nullString(c.Input.Path), nullString(c.Input.TimeColumn), nullString(c.Input.Delimiter), c.Input.DecimalComma, nullString(c.Input.RunPattern),
		nullString(sqlitePath), nullString(postgresConn),
		c.Server.Enabled, nullString(c.Server.ListenAddr), port, nullString(c.Server.Cert), nullString(c.Server.Key), c.Server.EnableCORS,
	)
	return err
}

func insertColumnList(tx *sql.Tx, table string, configID int64, columns []string) error {
	query := fmt.Sprintf("INSERT INTO %s (config_id, position, column_name) VALUES (?, ?, ?)", table)
	for i, c := range columns {
		if _, err := tx.Exec(query, configID, i, c); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
