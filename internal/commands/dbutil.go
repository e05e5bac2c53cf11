package commands

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/dotcommander/hooktrace/internal/app"
	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/output"
	"github.com/dotcommander/hooktrace/internal/store"
)

// DB is an alias so command code doesn't need to import database/sql.
type DB = sql.DB

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// The JSON error response is the output.
	return "error already printed"
}

func (e printedError) Unwrap() error { return e.err }

func openDB(ctx context.Context) (*DB, func(), error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.InitDBWithPath(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}

	return db, func() { _ = db.Close() }, nil
}

func withDB(ctx context.Context, fn func(db *DB) error) error {
	db, closeDB, err := openDB(ctx)
	if err != nil {
		return cmdErr(err)
	}
	defer closeDB()

	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

// cmdErr logs err with its structured context, prints the JSON error
// envelope and returns an error Execute will not log again.
func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}
	var re models.RecoverableError
	if errors.As(err, &re) {
		attrs = append(attrs, "error_code", re.ErrorCode())
		for k, v := range re.Context() {
			attrs = append(attrs, k, v)
		}
	}
	slog.Error("command error", attrs...)
	_ = output.PrintError(err)
	return printedError{err: err}
}
