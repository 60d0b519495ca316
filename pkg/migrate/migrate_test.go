package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/001_create_runs.up.sql":     {Data: []byte("CREATE TABLE runs (id TEXT PRIMARY KEY);")},
		"migrations/001_create_runs.down.sql":   {Data: []byte("DROP TABLE runs;")},
		"migrations/002_create_scores.up.sql":   {Data: []byte("CREATE TABLE scores (run_id TEXT, value REAL); CREATE INDEX idx_scores_run ON scores(run_id);")},
		"migrations/002_create_scores.down.sql": {Data: []byte("DROP INDEX idx_scores_run; DROP TABLE scores;")},
		"migrations/README.md":                  {Data: []byte("not a migration")},
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestGetMigrations(t *testing.T) {
	migrations, err := NewFSProvider(testFS(), "migrations", "").GetMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create runs", migrations[0].Name)
	assert.Contains(t, migrations[0].Up, "CREATE TABLE runs")
	assert.Contains(t, migrations[1].Down, "DROP TABLE scores")
}

func TestMigrateUpAndDown(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", ""), nil)

	pending, err := m.GetPendingMigrations()
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, m.MigrateUp())
	v, err := m.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.True(t, tableExists(t, db, "scores"))

	// Running again is a no-op.
	require.NoError(t, m.MigrateUp())

	require.NoError(t, m.MigrateDown(1))
	v, err = m.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, tableExists(t, db, "scores"))
	assert.True(t, tableExists(t, db, "runs"))

	require.NoError(t, m.MigrateTo(0))
	v, err = m.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.False(t, tableExists(t, db, "runs"))
}

func TestMigrateDown_RejectsTargetAboveCurrent(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", ""), nil)
	require.NoError(t, m.MigrateTo(1))

	assert.Error(t, m.MigrateDown(1))
	assert.Error(t, m.MigrateDown(5))
}

func TestMigrate_MissingDownSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"001_only_up.up.sql": {Data: []byte("CREATE TABLE t (x INTEGER);")},
	}
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(fsys, ".", "custom_migrations"), nil)

	require.NoError(t, m.MigrateUp())
	assert.True(t, tableExists(t, db, "custom_migrations"))
	assert.Error(t, m.MigrateDown(0))
}
