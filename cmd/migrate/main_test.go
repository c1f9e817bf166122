package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_inbound_events_received_idx.sql", true, 1, "inbound_events_received_idx"},
		{"0012_add_column.sql", true, 12, "add_column"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0002_second.sql", "SELECT 2;")
	writeFile(t, dir, "0001_first.sql", "SELECT 1;")
	writeFile(t, dir, "README.md", "not a migration")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o755))

	migrations, err := readMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "SELECT 1;", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Len(t, migrations[0].Checksum, 64)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestReadMigrations_ChecksumConsistency(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeFile(t, a, "0001_x.sql", "CREATE TABLE test (id INT);")
	writeFile(t, b, "0001_x.sql", "CREATE TABLE test (id INT);")

	ma, err := readMigrations(a)
	require.NoError(t, err)
	mb, err := readMigrations(b)
	require.NoError(t, err)
	assert.Equal(t, ma[0].Checksum, mb[0].Checksum)
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0001_a.sql", "SELECT 1;")
	writeFile(t, dir, "0001_b.sql", "SELECT 1;")

	_, err := readMigrations(dir)
	assert.ErrorContains(t, err, "duplicate migration version 0001")
}

func TestReadMigrations_ShippedFiles(t *testing.T) {
	dir, err := resolveMigrationsDir("migrations/postgres")
	require.NoError(t, err)

	migrations, err := readMigrations(dir)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "versions are contiguous")
	}
}

func TestPlanMigrations(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "one", Checksum: "aaa"},
		{Version: 2, Name: "two", Checksum: "bbb"},
		{Version: 3, Name: "three", Checksum: "ccc"},
	}
	applied := []schemaMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "changed"},
	}

	pending, drifted := planMigrations(migrations, applied)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)
	require.Len(t, drifted, 1)
	assert.Equal(t, 2, drifted[0].Version)

	pending, drifted = planMigrations(migrations, nil)
	assert.Len(t, pending, 3)
	assert.Empty(t, drifted)
}
