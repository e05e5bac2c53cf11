package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dotcommander/hooktrace/internal/models"
)

// TraceSeed is what the first event of a conversation knows about its trace.
type TraceSeed struct {
	ConversationID  string
	WorkspaceID     string
	CandidateHandle string
	At              time.Time
}

// DeltaResult is the state after a delta was applied.
type DeltaResult struct {
	Trace    *models.Trace
	ToolCall *models.ToolCallResult
}

const traceColumns = `
	t.conversation_id, t.workspace_id, t.handle, t.created_at, t.last_activity_at,
	t.ended_at, t.end_status, t.event_count,
	t.prompts, t.responses, t.thoughts, t.tool_calls, t.tool_successes, t.tool_failures,
	t.tool_denials, t.shell_calls, t.file_reads, t.edits, t.lines_added, t.lines_removed,
	t.timed_tool_calls, t.tool_duration_ms, t.tags, t.score,
	(SELECT COUNT(*) FROM trace_files f WHERE f.conversation_id = t.conversation_id)`

// EnsureTrace loads or creates the trace for a conversation. The candidate
// handle is stored only if this call inserted the row; created reports that.
// Every other caller, concurrent or later, gets the stored handle back.
func EnsureTrace(ctx context.Context, db *sql.DB, seed TraceSeed) (*models.Trace, bool, error) {
	var (
		out     *models.Trace
		created bool
	)
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		ms := toMillis(seed.At)
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO traces (conversation_id, workspace_id, handle, created_at, last_activity_at)
			VALUES (?, ?, ?, ?, ?)
		`, seed.ConversationID, seed.WorkspaceID, seed.CandidateHandle, ms, ms)
		if err != nil {
			return fmt.Errorf("insert trace: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert trace rows affected: %w", err)
		}
		created = n == 1

		if _, err := tx.ExecContext(ctx, `
			UPDATE traces SET last_activity_at = MAX(last_activity_at, ?)
			WHERE conversation_id = ?
		`, ms, seed.ConversationID); err != nil {
			return fmt.Errorf("touch trace: %w", err)
		}

		t, err := loadTrace(ctx, tx, seed.ConversationID)
		if err != nil {
			return err
		}
		// A conversation belongs to the workspace of its first event.
		if err := registerConversationTx(ctx, tx, t.WorkspaceID, t.ConversationID, seed.At); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, false, storeErr("resolve trace", seed.ConversationID, err)
	}
	return out, created, nil
}

// Summarizer derives tags and, when closing, a score from a freshly loaded
// trace. A nil score keeps the stored one.
type Summarizer func(t *models.Trace) (tags []string, score *float64)

// ApplyDelta applies one handler's delta to a trace in a single write
// transaction. Counters are incremented in SQL, never read-modify-written, so
// concurrent invocations cannot lose updates.
func ApplyDelta(ctx context.Context, db *sql.DB, conversationID string, at time.Time, d models.StateDelta) (*DeltaResult, error) {
	return ApplyDeltaSummarized(ctx, db, conversationID, at, d, nil)
}

// ApplyDeltaSummarized is ApplyDelta plus a summary refresh inside the same
// transaction. sum sees the counters including every earlier commit, so the
// stored tags always match the stored counters.
func ApplyDeltaSummarized(ctx context.Context, db *sql.DB, conversationID string, at time.Time, d models.StateDelta, sum Summarizer) (*DeltaResult, error) {
	var out *DeltaResult
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		ms := toMillis(at)
		res, err := tx.ExecContext(ctx, `
			UPDATE traces SET
				event_count = event_count + 1,
				prompts = prompts + ?,
				responses = responses + ?,
				thoughts = thoughts + ?,
				tool_calls = tool_calls + ?,
				tool_denials = tool_denials + ?,
				shell_calls = shell_calls + ?,
				file_reads = file_reads + ?,
				edits = edits + ?,
				lines_added = lines_added + ?,
				lines_removed = lines_removed + ?,
				last_activity_at = MAX(last_activity_at, ?)
			WHERE conversation_id = ?
		`, d.Prompts, d.Responses, d.Thoughts, d.ToolCalls, d.ToolDenials, d.ShellCalls,
			d.FileReads, d.Edits, d.LinesAdded, d.LinesRemoved, ms, conversationID)
		if err != nil {
			return fmt.Errorf("apply counters: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("apply counters rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrTraceNotFound, conversationID)
		}

		if d.FilePath != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO trace_files (conversation_id, path) VALUES (?, ?)
			`, conversationID, d.FilePath); err != nil {
				return fmt.Errorf("record file: %w", err)
			}
		}

		if d.StartCall != nil && d.StartCall.Key != "" {
			if err := startToolCallTx(ctx, tx, conversationID, *d.StartCall); err != nil {
				return err
			}
		}

		var result *models.ToolCallResult
		if d.FinishCall != nil {
			result, err = finishToolCallTx(ctx, tx, conversationID, *d.FinishCall)
			if err != nil {
				return err
			}
			if err := countOutcomeTx(ctx, tx, conversationID, result); err != nil {
				return err
			}
		}

		if d.End != "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE traces SET end_status = ?, ended_at = COALESCE(ended_at, ?)
				WHERE conversation_id = ?
			`, string(d.End), ms, conversationID); err != nil {
				return fmt.Errorf("close trace: %w", err)
			}
		}

		t, err := loadTrace(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if sum != nil {
			tags, score := sum(t)
			if tags == nil {
				tags = []string{}
			}
			if err := writeSummaryTx(ctx, tx, conversationID, tags, score); err != nil {
				return err
			}
			t.Tags = tags
			if score != nil {
				t.Score = score
			}
		}
		out = &DeltaResult{Trace: t, ToolCall: result}
		return nil
	})
	if err != nil {
		return nil, storeErr("apply delta", conversationID, err)
	}
	return out, nil
}

func writeSummaryTx(ctx context.Context, tx *sql.Tx, conversationID string, tags []string, score *float64) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	var scoreArg any
	if score != nil {
		scoreArg = *score
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE traces SET tags = ?, score = COALESCE(?, score)
		WHERE conversation_id = ?
	`, string(tagsJSON), scoreArg, conversationID); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

// GetTrace loads a trace by conversation id.
func GetTrace(ctx context.Context, db *sql.DB, conversationID string) (*models.Trace, error) {
	var out *models.Trace
	err := RetryWithBackoff(ctx, func() error {
		t, err := loadTrace(ctx, db, conversationID)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTraceNotFound) {
			return nil, err
		}
		return nil, storeErr("get trace", conversationID, err)
	}
	return out, nil
}

// ListTraces returns the most recently active traces, newest first.
// An empty workspaceID lists every workspace.
func ListTraces(ctx context.Context, db *sql.DB, workspaceID string, limit int) ([]models.Trace, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.Trace
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, `
			SELECT `+traceColumns+`
			FROM traces t
			WHERE (? = '' OR t.workspace_id = ?)
			ORDER BY t.last_activity_at DESC, t.conversation_id
			LIMIT ?
		`, workspaceID, workspaceID, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			t, err := scanTrace(rows)
			if err != nil {
				return err
			}
			out = append(out, *t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storeErr("list traces", workspaceID, err)
	}
	return out, nil
}

func loadTrace(ctx context.Context, q Querier, conversationID string) (*models.Trace, error) {
	row := q.QueryRowContext(ctx, `SELECT `+traceColumns+` FROM traces t WHERE t.conversation_id = ?`, conversationID)
	t, err := scanTrace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("load trace: %w", err)
	}
	return t, nil
}

func scanTrace(row interface{ Scan(dest ...any) error }) (*models.Trace, error) {
	var (
		t               models.Trace
		s               models.TraceStats
		created, lastMS int64
		ended           sql.NullInt64
		endStatus       string
		tagsJSON        string
		score           sql.NullFloat64
	)
	if err := row.Scan(
		&t.ConversationID, &t.WorkspaceID, &t.Handle, &created, &lastMS,
		&ended, &endStatus, &t.EventCount,
		&s.Prompts, &s.Responses, &s.Thoughts, &s.ToolCalls, &s.ToolSuccesses, &s.ToolFailures,
		&s.ToolDenials, &s.ShellCalls, &s.FileReads, &s.Edits, &s.LinesAdded, &s.LinesRemoved,
		&s.TimedToolCalls, &s.ToolDurationMS, &tagsJSON, &score,
		&s.FilesTouched,
	); err != nil {
		return nil, err
	}

	t.CreatedAt = fromMillis(created)
	t.LastActivityAt = fromMillis(lastMS)
	t.EndedAt = scanNullMillis(ended)
	t.EndStatus = models.EndStatus(endStatus)
	t.Score = scanNullFloat(score)

	s.StartedAt = t.CreatedAt
	s.LastActivityAt = t.LastActivityAt
	s.EndStatus = t.EndStatus
	t.Stats = s

	t.Tags = []string{}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &t, nil
}
