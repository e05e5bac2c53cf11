package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/publisher"
	"github.com/dotcommander/hooktrace/internal/store"
)

// TraceCreator hands out remote trace handles and registers new traces with
// the backend.
type TraceCreator interface {
	NewHandle() string
	CreateRemoteTrace(rec publisher.TraceRecord) (string, error)
}

// ResolveSession loads or creates the session for a workspace. Creation is
// idempotent across concurrent invocations and activity time is always bumped.
func ResolveSession(ctx context.Context, db *sql.DB, workspaceID string, now time.Time) (*models.Session, error) {
	if workspaceID == "" {
		workspaceID = models.DefaultWorkspaceID
	}
	return store.ResolveSession(ctx, db, workspaceID, now)
}

// ResolveTrace loads or creates the trace for ev's conversation and registers
// the conversation with its session. Only the invocation that inserted the
// trace row calls creator.CreateRemoteTrace; every other invocation reuses the
// stored handle.
func ResolveTrace(ctx context.Context, db *sql.DB, creator TraceCreator, ev *models.Event, session *models.Session) (*models.Trace, bool, error) {
	if ev == nil {
		return nil, false, errors.New("resolve trace: nil event")
	}
	workspaceID := ev.WorkspaceID
	if session != nil {
		workspaceID = session.WorkspaceID
	}

	trace, created, err := store.EnsureTrace(ctx, db, store.TraceSeed{
		ConversationID:  ev.ConversationID,
		WorkspaceID:     workspaceID,
		CandidateHandle: creator.NewHandle(),
		At:              ev.Timestamp,
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		return trace, false, nil
	}

	if _, err := creator.CreateRemoteTrace(traceRecord(ev, trace)); err != nil {
		return nil, false, fmt.Errorf("create remote trace: %w", err)
	}
	return trace, true, nil
}

func traceRecord(ev *models.Event, trace *models.Trace) publisher.TraceRecord {
	meta := map[string]any{
		"conversation_id": trace.ConversationID,
		"workspace_id":    trace.WorkspaceID,
		"first_hook":      string(ev.Hook),
		"handler_version": models.HandlerVersion,
		"schema_version":  models.HookSchemaVersion,
	}
	if ev.GenerationID != "" {
		meta["generation_id"] = ev.GenerationID
	}
	if ev.Payload.Model != "" {
		meta["model"] = ev.Payload.Model
	}
	return publisher.TraceRecord{
		ID:        trace.Handle,
		Name:      "conversation",
		SessionID: store.RemoteSessionID(trace.WorkspaceID),
		UserID:    ev.Payload.UserEmail,
		Timestamp: trace.CreatedAt,
		Metadata:  meta,
	}
}
