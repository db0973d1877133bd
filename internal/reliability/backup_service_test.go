package reliability

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSourceDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE entries (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO entries (name) VALUES ('one'), ('two'), ('three')`)
	require.NoError(t, err)

	return db
}

func TestBackupServiceRegister(t *testing.T) {
	svc := NewBackupService(zerolog.Nop())
	assert.Empty(t, svc.GetDatabaseNames())

	svc.Register("cache", newSourceDB(t))
	svc.Register("archive", newSourceDB(t))

	assert.Equal(t, []string{"archive", "cache"}, svc.GetDatabaseNames())
	assert.Len(t, svc.Databases(), 2)
}

func TestBackupDatabaseSnapshot(t *testing.T) {
	svc := NewBackupService(zerolog.Nop())
	svc.Register("cache", newSourceDB(t))

	dest := filepath.Join(t.TempDir(), "cache.db")
	err := svc.BackupDatabase("cache", dest)
	require.NoError(t, err)

	// The snapshot is a complete standalone database
	snapshot, err := sql.Open("sqlite3", dest)
	require.NoError(t, err)
	defer snapshot.Close()

	var count int
	err = snapshot.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBackupDatabaseUnknown(t *testing.T) {
	svc := NewBackupService(zerolog.Nop())

	err := svc.BackupDatabase("missing", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database")
}
