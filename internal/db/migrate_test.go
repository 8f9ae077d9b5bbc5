package db

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"000001_create_test_table.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE IF NOT EXISTS test_table (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"000001_create_test_table.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE IF EXISTS test_table;")},
		"000002_add_column.up.sql":          &fstest.MapFile{Data: []byte("ALTER TABLE test_table ADD COLUMN description TEXT;")},
		"000002_add_column.down.sql":        &fstest.MapFile{Data: []byte("ALTER TABLE test_table DROP COLUMN description;")},
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUpDown(t *testing.T) {
	db := openTestDB(t)
	migrations := testMigrations()

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	// Idempotent.
	require.NoError(t, db.MigrateUp(migrations))

	_, err = db.Exec("INSERT INTO test_table (name, description) VALUES ('a', 'b')")
	require.NoError(t, err)

	require.NoError(t, db.MigrateDown(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestCheckMigrationsOutstanding(t *testing.T) {
	db := openTestDB(t)

	status, err := db.CheckMigrations(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(0), status.Current)
	assert.Equal(t, uint(2), status.Latest)
	assert.False(t, status.UpToDate())
}

func TestLatestMigrationVersionErrors(t *testing.T) {
	_, err := LatestMigrationVersion(fstest.MapFS{})
	assert.ErrorContains(t, err, "no migration files")

	_, err = LatestMigrationVersion(fstest.MapFS{"init.up.sql": &fstest.MapFile{}})
	assert.ErrorContains(t, err, "could not determine")
}

func TestMigrateOnClosedDB(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.Error(t, db.MigrateUp(testMigrations()))
}
