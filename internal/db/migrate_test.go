package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		body, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+e.Name())
		require.NoError(t, err)

		sql := string(body)
		assert.Contains(t, sql, "-- +goose Up", e.Name())
		assert.Contains(t, sql, "-- +goose Down", e.Name())
	}
}

func TestInitMigration_CascadesPaymentsWithSession(t *testing.T) {
	body, err := fs.ReadFile(migrationsFS, migrationsDir+"/00001_init.sql")
	require.NoError(t, err)

	sql := string(body)
	assert.True(t, strings.Contains(sql, "REFERENCES sessions (id) ON DELETE CASCADE"))
	assert.True(t, strings.Contains(sql, "sessions_single_membership"))
}
