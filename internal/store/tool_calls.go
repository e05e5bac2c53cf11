package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dotcommander/hooktrace/internal/models"
)

// startToolCallTx records the start of a keyed tool call. A repeated start
// keeps the first timestamp. A derived key whose call already finished is a
// new run of the same command, so its row is reopened.
func startToolCallTx(ctx context.Context, tx *sql.Tx, conversationID string, start models.ToolCallStart) error {
	query := `
		INSERT INTO tool_calls (conversation_id, call_key, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT (conversation_id, call_key)
		DO UPDATE SET started_at = COALESCE(tool_calls.started_at, excluded.started_at)
	`
	if start.Derived {
		query = `
		INSERT INTO tool_calls (conversation_id, call_key, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT (conversation_id, call_key)
		DO UPDATE SET
			started_at = CASE WHEN tool_calls.finished_at IS NULL
				THEN COALESCE(tool_calls.started_at, excluded.started_at)
				ELSE excluded.started_at END,
			finished_at = NULL,
			success = NULL,
			duration_ms = NULL
	`
	}
	if _, err := tx.ExecContext(ctx, query, conversationID, start.Key, toMillis(start.At)); err != nil {
		return fmt.Errorf("start tool call: %w", err)
	}
	return nil
}

// finishToolCallTx closes a tool call. Without a recorded start the duration
// is unknown (nil); with one it is post minus pre, floored at zero. An empty
// key is an unpaired call and touches no row. A second finish is a duplicate
// only for host-supplied keys.
func finishToolCallTx(ctx context.Context, tx *sql.Tx, conversationID string, fin models.ToolCallFinish) (*models.ToolCallResult, error) {
	result := &models.ToolCallResult{Key: fin.Key, Success: fin.Success}
	if fin.Key == "" {
		return result, nil
	}

	var started, finished, success, duration sql.NullInt64
	err := tx.QueryRowContext(ctx, `
		SELECT started_at, finished_at, success, duration_ms
		FROM tool_calls
		WHERE conversation_id = ? AND call_key = ?
	`, conversationID, fin.Key).Scan(&started, &finished, &success, &duration)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tool_calls (conversation_id, call_key, finished_at, success)
			VALUES (?, ?, ?, ?)
		`, conversationID, fin.Key, toMillis(fin.At), boolToInt(fin.Success)); err != nil {
			return nil, fmt.Errorf("record unpaired tool call: %w", err)
		}
		return result, nil

	case err != nil:
		return nil, fmt.Errorf("load tool call: %w", err)

	case finished.Valid && fin.Derived:
		// Another run of the same command with no pre of its own.
		if _, err := tx.ExecContext(ctx, `
			UPDATE tool_calls SET started_at = NULL, finished_at = ?, success = ?, duration_ms = NULL
			WHERE conversation_id = ? AND call_key = ?
		`, toMillis(fin.At), boolToInt(fin.Success), conversationID, fin.Key); err != nil {
			return nil, fmt.Errorf("record repeated tool call: %w", err)
		}
		return result, nil

	case finished.Valid:
		result.Success = success.Valid && success.Int64 == 1
		result.DurationMS = scanNullInt64(duration)
		result.Duplicate = true
		return result, nil
	}

	if started.Valid {
		d := max(0, toMillis(fin.At)-started.Int64)
		result.DurationMS = &d
	}
	var durArg any
	if result.DurationMS != nil {
		durArg = *result.DurationMS
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tool_calls SET finished_at = ?, success = ?, duration_ms = ?
		WHERE conversation_id = ? AND call_key = ?
	`, toMillis(fin.At), boolToInt(fin.Success), durArg, conversationID, fin.Key); err != nil {
		return nil, fmt.Errorf("finish tool call: %w", err)
	}
	return result, nil
}

// countOutcomeTx folds a finished call into the trace counters. Duplicate
// finishes were already counted.
func countOutcomeTx(ctx context.Context, tx *sql.Tx, conversationID string, r *models.ToolCallResult) error {
	if r == nil || r.Duplicate {
		return nil
	}
	var succ, fail, timed int
	var dur int64
	if r.Success {
		succ = 1
	} else {
		fail = 1
	}
	if r.DurationMS != nil {
		timed = 1
		dur = *r.DurationMS
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE traces SET
			tool_successes = tool_successes + ?,
			tool_failures = tool_failures + ?,
			timed_tool_calls = timed_tool_calls + ?,
			tool_duration_ms = tool_duration_ms + ?
		WHERE conversation_id = ?
	`, succ, fail, timed, dur, conversationID); err != nil {
		return fmt.Errorf("count tool outcome: %w", err)
	}
	return nil
}

// GetToolCall returns the stored pairing row, for diagnostics and tests.
func GetToolCall(ctx context.Context, db *sql.DB, conversationID, key string) (*models.ToolCallResult, bool, error) {
	var finished, success, duration sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT finished_at, success, duration_ms
		FROM tool_calls
		WHERE conversation_id = ? AND call_key = ?
	`, conversationID, key).Scan(&finished, &success, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storeErr("get tool call", key, err)
	}
	return &models.ToolCallResult{
		Key:        key,
		Success:    success.Valid && success.Int64 == 1,
		DurationMS: scanNullInt64(duration),
	}, finished.Valid, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
