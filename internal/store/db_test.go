package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := InitDBWithPath(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, dbPath
}

func TestInitDB(t *testing.T) {
	db, dbPath := setupTestDB(t)

	_, statErr := os.Stat(dbPath)
	require.NoError(t, statErr, "database file was not created")

	for _, table := range []string{"sessions", "session_conversations", "traces", "trace_files", "tool_calls"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s was not created", table)
	}

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)

	current, latest, err := SchemaVersion(db)
	require.NoError(t, err)
	require.Equal(t, latest, current)
	require.GreaterOrEqual(t, latest, int64(1))
}

func TestInitDB_ReopenIsIdempotent(t *testing.T) {
	_, dbPath := setupTestDB(t)

	db2, err := InitDBWithPath(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, db2.Close())
}

func TestInitDB_HonorsBusyTimeoutEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HOOKTRACE_BUSY_TIMEOUT_MS", "1234")

	db, _ := setupTestDB(t)
	var timeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	require.Equal(t, 1234, timeout)
}

func TestNormalizeSQLiteDSN(t *testing.T) {
	require.Equal(t, "file:/tmp/x.db?mode=rwc&_txlock=immediate", normalizeSQLiteDSN("/tmp/x.db"))
	require.Equal(t, "file::memory:?cache=shared&_txlock=immediate", normalizeSQLiteDSN(":memory:"))
	require.Equal(t, "file:/tmp/x.db?mode=ro&_txlock=immediate", normalizeSQLiteDSN("file:/tmp/x.db?mode=ro"))
	require.Equal(t, "file:/tmp/x.db?_txlock=immediate", normalizeSQLiteDSN("file:/tmp/x.db"))
	require.Equal(t, "file:/tmp/x.db?_txlock=deferred", normalizeSQLiteDSN("file:/tmp/x.db?_txlock=deferred"))
}

func TestMigrateDB_CreatesLockFile(t *testing.T) {
	_, dbPath := setupTestDB(t)
	require.FileExists(t, dbPath+".migrate.lock")
}

func TestLockFile_RespectsContext(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "locked.db")

	held, err := lockFile(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { unlockFile(held) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lockFile(ctx, dbPath)
	require.Error(t, err)
}
