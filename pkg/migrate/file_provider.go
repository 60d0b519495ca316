package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Migration files are named 001_create_runs.up.sql / 001_create_runs.down.sql.
var migrationFileRegex = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// FileProvider loads migrations from a filesystem, usually an embed.FS
// compiled into the binary, and tracks the applied versions in a table.
type FileProvider struct {
	fsys           fs.FS
	dir            string
	migrationTable string
	dbDriver       string // "sqlite" or "postgres"
}

// NewFileProvider creates a provider reading *.sql files from dir on disk.
func NewFileProvider(dir string, migrationTable string) *FileProvider {
	return NewFSProvider(os.DirFS(dir), ".", migrationTable)
}

// NewFSProvider creates a provider reading *.sql files from dir within fsys.
func NewFSProvider(fsys fs.FS, dir string, migrationTable string) *FileProvider {
	if migrationTable == "" {
		migrationTable = "schema_migrations"
	}
	return &FileProvider{
		fsys:           fsys,
		dir:            dir,
		migrationTable: migrationTable,
		dbDriver:       "sqlite",
	}
}

// WithDriver selects the SQL dialect used for the tracking table.
func (fp *FileProvider) WithDriver(dbDriver string) *FileProvider {
	fp.dbDriver = dbDriver
	return fp
}

// GetMigrations loads all migrations found in the provider's directory.
func (fp *FileProvider) GetMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(fp.fsys, fp.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", fp.dir, err)
	}

	byVersion := make(map[int]*Migration)
	var versions []int

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationFileRegex.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version number in file %s: %w", entry.Name(), err)
		}

		content, err := fs.ReadFile(fp.fsys, joinPath(fp.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: strings.ReplaceAll(matches[2], "_", " ")}
			byVersion[version] = m
			versions = append(versions, version)
		}
		if matches[3] == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	// fs.ReadDir returns entries sorted by name, and zero padded version
	// prefixes keep that order numeric.
	migrations := make([]Migration, 0, len(versions))
	for _, v := range versions {
		migrations = append(migrations, *byVersion[v])
	}
	return migrations, nil
}

// CreateMigrationTable creates the migration tracking table
func (fp *FileProvider) CreateMigrationTable(db *sql.DB) error {
	column := "DATETIME"
	if fp.dbDriver == "postgres" {
		column = "TIMESTAMP"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at %s DEFAULT CURRENT_TIMESTAMP
		)
	`, fp.migrationTable, column)

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// GetCurrentVersion returns the highest applied migration version
func (fp *FileProvider) GetCurrentVersion(db *sql.DB) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", fp.migrationTable)

	var version int
	if err := db.QueryRow(query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// SetVersion marks version as applied. Setting version 0 clears the table.
func (fp *FileProvider) SetVersion(db DB, version int) error {
	var err error
	switch {
	case version == 0:
		_, err = db.Exec(fmt.Sprintf("DELETE FROM %s", fp.migrationTable))
	case fp.dbDriver == "postgres":
		_, err = db.Exec(fmt.Sprintf(`
			INSERT INTO %s (version, applied_at)
			VALUES ($1, CURRENT_TIMESTAMP)
			ON CONFLICT (version) DO UPDATE SET applied_at = CURRENT_TIMESTAMP
		`, fp.migrationTable), version)
	default:
		_, err = db.Exec(fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (version, applied_at)
			VALUES (?, CURRENT_TIMESTAMP)
		`, fp.migrationTable), version)
	}
	if err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}

// RemoveVersion forgets that version was applied.
func (fp *FileProvider) RemoveVersion(db DB, version int) error {
	placeholder := "?"
	if fp.dbDriver == "postgres" {
		placeholder = "$1"
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE version >= %s", fp.migrationTable, placeholder)
	if _, err := db.Exec(query, version); err != nil {
		return fmt.Errorf("failed to remove version: %w", err)
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}
