package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/almanac/internal/database"
	testutil "github.com/aristath/almanac/internal/testing"
)

func TestNewAndMigrate(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	assert.Equal(t, "cache", db.Name())
	assert.Equal(t, database.ProfileCache, db.Profile())

	// Migrate applied the real cache schema
	for _, table := range []string{"shinny_holidays", "shinny_continuous"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	// cache_schema.sql has no IF NOT EXISTS clauses; Migrate tolerates the
	// second application anyway.
	require.NoError(t, db.Migrate())
}

func TestMigrateUnknownNameIsNoop(t *testing.T) {
	db, cleanup := testutil.NewTestDBWithSchema(t, "scratch", "CREATE TABLE t (id INTEGER)")
	defer cleanup()

	require.NoError(t, db.Migrate())

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'shinny_%'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHealthCheck(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, db.QuickCheck(context.Background()))
}

func TestGetStats(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestWithTransaction(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	err := database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO shinny_holidays (source, data, expires_at) VALUES (?, ?, ?)",
			"holidays", `["2019-12-05"]`, 9999999999,
		)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM shinny_holidays").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	err := database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO shinny_holidays (source, data, expires_at) VALUES (?, ?, ?)",
			"holidays", "[]", 0,
		); err != nil {
			return err
		}
		_, err := tx.Exec("INSERT INTO no_such_table (x) VALUES (1)")
		return err
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM shinny_holidays").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWALCheckpointAndVacuum(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	_, err := db.Exec(
		"INSERT INTO shinny_continuous (source, data, expires_at) VALUES (?, ?, ?)",
		"continuous_table", "{}", 9999999999,
	)
	require.NoError(t, err)

	require.NoError(t, db.WALCheckpoint("TRUNCATE"))
	require.NoError(t, db.Vacuum())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM shinny_continuous").Scan(&count))
	assert.Equal(t, 1, count)
}
