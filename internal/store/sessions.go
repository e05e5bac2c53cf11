package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dotcommander/hooktrace/internal/models"
)

// ResolveSession loads or creates the session for a workspace and bumps its
// activity time. Concurrent first callers race on INSERT OR IGNORE, so all of
// them observe one row with one creation time.
func ResolveSession(ctx context.Context, db *sql.DB, workspaceID string, at time.Time) (*models.Session, error) {
	var out *models.Session
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		ms := toMillis(at)
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO sessions (workspace_id, remote_session_id, created_at, last_activity_at)
			VALUES (?, ?, ?, ?)
		`, workspaceID, RemoteSessionID(workspaceID), ms, ms); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET last_activity_at = MAX(last_activity_at, ?)
			WHERE workspace_id = ?
		`, ms, workspaceID); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}

		s, err := loadSession(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, storeErr("resolve session", workspaceID, err)
	}
	return out, nil
}

// GetSession loads a session and its registered conversations.
func GetSession(ctx context.Context, db *sql.DB, workspaceID string) (*models.Session, error) {
	var out *models.Session
	err := RetryWithBackoff(ctx, func() error {
		s, err := loadSession(ctx, db, workspaceID)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, storeErr("get session", workspaceID, err)
	}
	return out, nil
}

// registerConversationTx links a conversation to its workspace session.
// Re-registering is a no-op.
func registerConversationTx(ctx context.Context, tx *sql.Tx, workspaceID, conversationID string, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (workspace_id, remote_session_id, created_at, last_activity_at)
		VALUES (?, ?, ?, ?)
	`, workspaceID, RemoteSessionID(workspaceID), toMillis(at), toMillis(at)); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO session_conversations (workspace_id, conversation_id, first_seen_at)
		VALUES (?, ?, ?)
	`, workspaceID, conversationID, toMillis(at)); err != nil {
		return fmt.Errorf("register conversation: %w", err)
	}
	return nil
}

func loadSession(ctx context.Context, q Querier, workspaceID string) (*models.Session, error) {
	var (
		s               models.Session
		created, lastMS int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT workspace_id, remote_session_id, created_at, last_activity_at
		FROM sessions
		WHERE workspace_id = ?
	`, workspaceID).Scan(&s.WorkspaceID, &s.RemoteSessionID, &created, &lastMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, workspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.CreatedAt = fromMillis(created)
	s.LastActivityAt = fromMillis(lastMS)

	ids, err := queryStringColumn(ctx, q, `
		SELECT conversation_id FROM session_conversations
		WHERE workspace_id = ?
		ORDER BY first_seen_at, conversation_id
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load session conversations: %w", err)
	}
	s.ConversationIDs = ids
	if s.ConversationIDs == nil {
		s.ConversationIDs = []string{}
	}
	return &s, nil
}
