package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dotcommander/hooktrace/internal/app"
	_ "modernc.org/sqlite"
)

// InitDB opens the correlation store at the configured path and runs migrations.
func InitDB(ctx context.Context) (*sql.DB, error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, err
	}
	return InitDBWithPath(ctx, dbPath)
}

// InitDBWithPath initializes a database at a specific path (useful for testing).
func InitDBWithPath(ctx context.Context, dbPath string) (*sql.DB, error) {
	if _, err := app.EnsureDBDir(dbPath); err != nil {
		return nil, err
	}

	// modernc.org/sqlite is strict about DSNs. _txlock=immediate makes every
	// BeginTx issue BEGIN IMMEDIATE so concurrent hook processes serialize on
	// the write lock up front instead of failing on lock upgrade.
	db, err := sql.Open("sqlite", normalizeSQLiteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One invocation, one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		// busy_timeout first so WAL negotiation waits on locks too.
		fmt.Sprintf("PRAGMA busy_timeout=%d", app.EffectiveBusyTimeoutMS()),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}

	for _, pragma := range pragmas {
		if err := RetryWithBackoff(ctx, func() error {
			_, err := db.ExecContext(ctx, pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := RetryWithBackoff(ctx, func() error { return MigrateDB(ctx, db, dbPath) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func normalizeSQLiteDSN(dbPath string) string {
	if strings.HasPrefix(dbPath, "file:") {
		if strings.Contains(dbPath, "_txlock=") {
			return dbPath
		}
		sep := "?"
		if strings.Contains(dbPath, "?") {
			sep = "&"
		}
		return dbPath + sep + "_txlock=immediate"
	}

	if dbPath == ":memory:" {
		return "file::memory:?cache=shared&_txlock=immediate"
	}

	// mode=rwc => read/write/create. Without this, some environments open read-only.
	return "file:" + dbPath + "?mode=rwc&_txlock=immediate"
}
